package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jwt "github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"

	"github.com/jrgenerative/bebop-bridge-service/internal/catalog"
	"github.com/jrgenerative/bebop-bridge-service/internal/commands"
	"github.com/jrgenerative/bebop-bridge-service/internal/sim"
	"github.com/jrgenerative/bebop-bridge-service/internal/telemetry"
	"github.com/jrgenerative/bebop-bridge-service/internal/transfer"
	"github.com/jrgenerative/bebop-bridge-service/internal/vehicle"
)

const (
	registryID    = "vehicle-registry"
	projectID     = "bebop-bridge"
	region        = "europe-west1"
	algorithm     = "RS256"
	defaultServer = "tcp://127.0.0.1:1883"
)

var (
	defaultFlagSet    = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	configPath        = defaultFlagSet.String("config", "", "Optional YAML config file")
	deviceID          = defaultFlagSet.String("device_id", "bebop1", "The provisioned device id")
	mqttBrokerAddress = defaultFlagSet.String("mqtt_broker", "", "MQTT broker protocol, address and port")
	privateKeyPath    = defaultFlagSet.String("private_key", "", "Private key for MQTT authentication; empty connects anonymously")
	vehicleImpl       = defaultFlagSet.String("vehicle", "dummy", "Vehicle implementation to instantiate")
	ftpServer         = defaultFlagSet.String("ftp_server", "", "Vehicle FTP address; empty uses the simulated storage")
	flightplanDir     = defaultFlagSet.String("flightplan_dir", "assets/missions", "Local flightplan catalog directory")
)

type config struct {
	DeviceID      string `yaml:"device_id"`
	MQTTBroker    string `yaml:"mqtt_broker"`
	PrivateKey    string `yaml:"private_key"`
	Vehicle       string `yaml:"vehicle"`
	FTPServer     string `yaml:"ftp_server"`
	FlightplanDir string `yaml:"flightplan_dir"`
}

func loadConfig() config {
	cfg := config{
		DeviceID:      *deviceID,
		MQTTBroker:    *mqttBrokerAddress,
		PrivateKey:    *privateKeyPath,
		Vehicle:       *vehicleImpl,
		FTPServer:     *ftpServer,
		FlightplanDir: *flightplanDir,
	}
	if *configPath == "" {
		return cfg
	}
	b, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatalf("Could not read config file: %v", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		log.Fatalf("Could not parse config file: %v", err)
	}
	// Flags explicitly set on the command line win over the file.
	defaultFlagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device_id":
			cfg.DeviceID = *deviceID
		case "mqtt_broker":
			cfg.MQTTBroker = *mqttBrokerAddress
		case "private_key":
			cfg.PrivateKey = *privateKeyPath
		case "vehicle":
			cfg.Vehicle = *vehicleImpl
		case "ftp_server":
			cfg.FTPServer = *ftpServer
		case "flightplan_dir":
			cfg.FlightplanDir = *flightplanDir
		}
	})
	return cfg
}

func main() {
	defaultFlagSet.Parse(os.Args[1:])
	cfg := loadConfig()

	terminationSignals := make(chan os.Signal, 1)
	signal.Notify(terminationSignals, syscall.SIGINT, syscall.SIGTERM)
	ctx, quitFunc := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	// Setup MQTT
	mqttClient := newMQTTClient(cfg)
	defer mqttClient.Disconnect(1000)

	// Instantiate the vehicle implementation
	var driver vehicle.Driver
	var remote transfer.Remote
	switch cfg.Vehicle {
	case "dummy":
		log.Printf("Instantiating 'dummy' vehicle implementation")
		simDriver := sim.NewDriver(sim.DefaultTimings())
		simDriver.Run(ctx, &wg)
		driver = simDriver
		remote = sim.NewRemote()
	default:
		log.Fatalf("No vehicle implementation with name '%s' found", cfg.Vehicle)
	}

	if cfg.FTPServer != "" {
		log.Printf("Using vehicle FTP storage at %s", cfg.FTPServer)
		ftpRemote, err := transfer.DialFTP(cfg.FTPServer)
		if err != nil {
			log.Fatalf("Could not reach vehicle FTP: %v", err)
		}
		defer ftpRemote.Close()
		remote = ftpRemote
	}

	session := vehicle.NewSession(driver, remote, vehicle.Config{})
	session.Run(ctx, &wg)

	cat := catalog.New(cfg.FlightplanDir)

	// Downlink: session events, current plan and catalog listing to MQTT
	telemetry.Start(ctx, &wg, mqttClient, cfg.DeviceID,
		session.Events(), session.Flightplan().Subscribe(), cat.Names())

	// Uplink: command intake
	if err := commands.StartCommandHandlers(ctx, &wg, mqttClient, session, cat, cfg.DeviceID); err != nil {
		log.Fatalf("Error on subscribe: %v", err)
	}

	// wait for termination and close quit to signal all
	<-terminationSignals
	log.Printf("Shutting down..")
	quitFunc()
	log.Printf("Waiting for routines to finish..")
	wg.Wait()
	log.Printf("Signing off - BYE")
}

func newMQTTClient(cfg config) mqtt.Client {
	serverAddress := cfg.MQTTBroker
	if serverAddress == "" {
		serverAddress = defaultServer
	}
	log.Printf("address: %v", serverAddress)

	clientID := fmt.Sprintf(
		"projects/%s/locations/%s/registries/%s/devices/%s",
		projectID, region, registryID, cfg.DeviceID)
	log.Println("Client ID:", clientID)

	opts := mqtt.NewClientOptions().
		AddBroker(serverAddress).
		SetClientID(clientID).
		SetProtocolVersion(4) // MQTT 3.1.1

	if cfg.PrivateKey != "" {
		opts.SetUsername("unused").
			SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
			SetPassword(brokerPassword(cfg.PrivateKey))
	}

	client := mqtt.NewClient(opts)

	for {
		// retry for ever
		log.Printf("Connecting MQTT...")
		tok := client.Connect()
		if err := tok.Error(); err != nil {
			panic(err)
		}
		if !tok.WaitTimeout(time.Second * 5) {
			log.Println("Connection Timeout")
			continue
		}
		if err := tok.Error(); err != nil {
			panic(err)
		}
		log.Printf("..Connected")
		break
	}

	return client
}

// brokerPassword mints the JWT used as the MQTT password.
func brokerPassword(privateKeyPath string) string {
	keyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		panic(err)
	}

	var key interface{}
	switch algorithm {
	case "RS256":
		key, err = jwt.ParseRSAPrivateKeyFromPEM(keyData)
	case "ES256":
		key, err = jwt.ParseECPrivateKeyFromPEM(keyData)
	default:
		log.Fatalf("Unknown algorithm: %s", algorithm)
	}
	if err != nil {
		panic(err)
	}

	t := time.Now()
	token := jwt.NewWithClaims(jwt.GetSigningMethod(algorithm), &jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(t),
		ExpiresAt: jwt.NewNumericDate(t.Add(24 * time.Hour)),
		Audience:  jwt.ClaimStrings{projectID},
	})
	pass, err := token.SignedString(key)
	if err != nil {
		panic(err)
	}
	return pass
}
