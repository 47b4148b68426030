package transfer

import (
	"io"
	"net/textproto"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
)

// Default credentials of the vehicle's anonymous FTP service.
const (
	ftpUser = "anonymous"
	ftpPass = "@anonymous"
)

// FTPRemote implements Remote on top of the vehicle's FTP service.
type FTPRemote struct {
	conn *ftp.ServerConn
}

// DialFTP connects and logs in to the vehicle's FTP service, e.g.
// "192.168.42.1:21".
func DialFTP(addr string) (*FTPRemote, error) {
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(5*time.Second))
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to vehicle ftp %s failed", addr)
	}
	if err := conn.Login(ftpUser, ftpPass); err != nil {
		conn.Quit()
		return nil, errors.Wrap(err, "vehicle ftp login failed")
	}
	return &FTPRemote{conn: conn}, nil
}

func (r *FTPRemote) List(dir string) ([]string, error) {
	names, err := r.conn.NameList(dir)
	if err != nil {
		return nil, err
	}
	// NameList may return full paths depending on the server; keep base
	// names only.
	for i, n := range names {
		if j := strings.LastIndexByte(n, '/'); j >= 0 {
			names[i] = n[j+1:]
		}
	}
	return names, nil
}

func (r *FTPRemote) Get(path string) (string, error) {
	resp, err := r.conn.Retr(path)
	if err != nil {
		if isNotFound(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	defer resp.Close()
	b, err := io.ReadAll(resp)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *FTPRemote) Put(path string, content string) error {
	return r.conn.Stor(path, strings.NewReader(content))
}

func (r *FTPRemote) Delete(path string) error {
	return r.conn.Delete(path)
}

func (r *FTPRemote) Close() error {
	return r.conn.Quit()
}

// isNotFound reports whether the server answered 550 (file unavailable).
func isNotFound(err error) bool {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		return proto.Code == ftp.StatusFileUnavailable
	}
	return false
}
