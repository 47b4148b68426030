package vehicle

import (
	"github.com/jrgenerative/bebop-bridge-service/internal/types"
)

// rule maps one vendor signal to its normalized event. A nil transform
// passes the payload through unchanged.
type rule struct {
	event     string
	transform func(interface{}) interface{}
}

// signalRules is the vendor-to-application event vocabulary. The grouping
// follows the sections of the vendor command set. Signals not listed here
// are dropped.
var signalRules = map[string]rule{
	// Error and success passthrough. 'success' carries a string, 'error' a
	// human-readable message.
	"error":   {event: "error"},
	"success": {event: "success"},

	// MediaRecordState
	"PictureStateChangedV2": {event: "picture-state"},
	"VideoStateChangedV2":   {event: "video-state"},

	// PilotingState
	"FlatTrimChanged":          {event: "flattrim-event"},
	"FlyingStateChanged":       {event: "flying-state"},
	"AlertStateChanged":        {event: "alert-state"},
	"NavigateHomeStateChanged": {event: "returnhome-state"},
	"PositionChanged":          {event: "position-event"},
	"SpeedChanged":             {event: "speed-event"},
	"AttitudeChanged":          {event: "attitude-event"},
	"AutoTakeOffModeChanged":   {event: "autotakeoff-state"},
	"AltitudeChanged":          {event: "altitude-event"},

	// PilotingEvent
	"moveByEnd": {event: "movement-event"},

	// PilotingSettingsState
	"MaxAltitudeChanged":                        {event: "max-altitude-state"},
	"MaxTiltChanged":                            {event: "max-tilt-state"},
	"AbsolutControlChanged":                     {event: "absolut-control-state"},
	"MaxDistanceChanged":                        {event: "max-distance-state"},
	"NoFlyOverMaxDistanceChanged":               {event: "no-fly-over-max-distance-state"},
	"AutonomousFlightMaxHorizontalSpeed":        {event: "autonomous-flight-max-horizontal-speed-state"},
	"AutonomousFlightMaxVerticalSpeed":          {event: "autonomous-flight-max-vertical-speed-state"},
	"AutonomousFlightMaxHorizontalAcceleration": {event: "autonomous-flight-max-horizontal-acceleration-state"},
	"AutonomousFlightMaxVerticalAcceleration":   {event: "autonomous-flight-max-vertical-acceleration-state"},
	"AutonomousFlightMaxRotationSpeed":          {event: "autonomous-flight-max-rotation-speed-state"},
	"BankedTurnChanged":                         {event: "bank-turn-state"},
	"MinAltitudeChanged":                        {event: "min-altitude-state"},
	"CirclingDirectionChanged":                  {event: "circling-direction-state"},
	"CirclingRadiusChanged":                     {event: "circling-radius-state"},
	"CirclingAltitudeChanged":                   {event: "circling-altitude-state"},
	"PitchModeChanged":                          {event: "pitch-mode-state"},
	"LandingModeChanged":                        {event: "landing-mode-state"},

	// SpeedSettingsState
	"MaxVerticalSpeedChanged":          {event: "max-vertical-speed-state"},
	"MaxRotationSpeedChanged":          {event: "max-rotation-speed-state"},
	"OutdoorChanged":                   {event: "outdoor-state"},
	"MaxPitchRollRotationSpeedChanged": {event: "max-pitch-roll-rotation-speed-state"},

	// PictureSettingsState
	"PictureFormatChanged":          {event: "picture-format-state"},
	"AutoWhiteBalanceChanged":       {event: "auto-white-balance-state"},
	"ExpositionChanged":             {event: "exposition-state"},
	"SaturationChanged":             {event: "saturation-state"},
	"TimelapseChanged":              {event: "timelapse-state"},
	"VideoAutorecordChanged":        {event: "video-autorecord-state"},
	"VideoStabilizationModeChanged": {event: "video-stabilization-mode-state"},

	// MediaStreamingState
	"MediaStreamingState": {event: "video-enabled-state"},

	// GPSSettingsState
	// GPSFixStateChanged arrives 0/1 coded and is narrowed to a real bool.
	"HomeChanged":            {event: "home-state"},
	"ResetHomeChanged":       {event: "reset-home-state"},
	"GPSFixStateChanged":     {event: "gps-fix-state", transform: asBool},
	"GPSUpdateStateChanged":  {event: "gps-update-state"},
	"HomeTypeChanged":        {event: "home-type-state"},
	"ReturnHomeDelayChanged": {event: "return-home-delay-state"},

	// CameraState
	"Orientation":              {event: "camera-orientation-state"},
	"defaultCameraOrientation": {event: "camera-default-orientation-state"},

	// GPSState
	"NumberOfSatelliteChanged":    {event: "number-of-satellites-state"},
	"HomeTypeAvailabilityChanged": {event: "home-type-availability-state"},
	"HomeTypeChosenChanged":       {event: "home-type-chosen-state"},

	// NetworkEvent
	"Disconnection": {event: "disconnection-event"},

	// SettingsState
	"AllSettingsChanged":    {event: "all-settings-state"},
	"ResetChanged":          {event: "reset-state"},
	"ProductNameChanged":    {event: "name-state"},
	"ProductVersionChanged": {event: "version-state"},

	// CommonState
	"AllStatesChanged":    {event: "all-states-state"},
	"BatteryStateChanged": {event: "battery-state"},
	"battery":             {event: "battery-level"},
	"CurrentDateChanged":  {event: "current-date-state"},
	"CurrentTimeChanged":  {event: "current-time-state"},
	"WifiSignalChanged":   {event: "connection-quality", transform: asRSSI},

	// OverHeatState
	"OverHeatChanged":           {event: "overheat-state"},
	"OverHeatRegulationChanged": {event: "overheat-regulation-state"},

	// Controller
	"isPiloting": {event: "piloting-state"},

	// WifiSettingsState
	"outdoorSettingsChanged": {event: "outdoor-settings-state"},

	// MavlinkState
	"MavlinkFilePlayingStateChanged": {event: "mission-execution-state"},
	"MavlinkPlayErrorStateChanged":   {event: "mission-error-state"},

	// CameraSettingsState
	"CameraSettingsChanged": {event: "camera-settings-state"},

	// FlightPlanState
	"AvailabilityStateChanged":  {event: "autonomous-flight-availability-state", transform: asAvailability},
	"ComponentStateListChanged": {event: "autonomous-flight-check-state"},

	// FlightPlanEvent
	"StartingErrorEvent": {event: "autonomous-flight-starting-error-event"},
	"SpeedBridleEvent":   {event: "autonomous-flight-speed-bridle-event"},

	// AudioState
	"AudioStreamingRunning": {event: "audio-streaming-state"},

	// ChargerState
	"MaxChargeRateChanged":      {event: "max-charge-rate-state"},
	"CurrentChargeStateChanged": {event: "current-charge-rate-state"},
	"LastChargeRateChanged":     {event: "last-charge-rate-state"},
	"ChargingInfo":              {event: "charging-state"},

	// RunState
	"RunIdChanged": {event: "run-id-state"},
}

// Translate maps a raw vendor signal to its normalized events. Unknown
// signal names yield nil. The mass-storage signal is the one entry fanning
// out into two events, because size and used size are separate entries of
// the normalized vocabulary.
func Translate(sig types.Signal) []types.Event {
	if sig.Name == "MassStorageInfoStateListChanged" {
		ms, ok := sig.Payload.(types.MassStorage)
		if !ok {
			return nil
		}
		return []types.Event{
			{Name: "mass-storage-used-size", Payload: ms.UsedSize},
			{Name: "mass-storage-size", Payload: ms.Size},
		}
	}

	r, ok := signalRules[sig.Name]
	if !ok {
		return nil
	}
	payload := sig.Payload
	if r.transform != nil {
		payload = r.transform(payload)
	}
	return []types.Event{{Name: r.event, Payload: payload}}
}

// asBool narrows the vendor's 0/1 coded values to a real boolean.
func asBool(v interface{}) interface{} {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x == 1
	case float64:
		return x == 1
	default:
		return false
	}
}

func asRSSI(v interface{}) interface{} {
	if ws, ok := v.(types.WifiSignal); ok {
		return ws.RSSI
	}
	return v
}

func asAvailability(v interface{}) interface{} {
	if a, ok := v.(types.AutonomousFlightAvailability); ok {
		return a.AvailabilityState
	}
	return v
}
