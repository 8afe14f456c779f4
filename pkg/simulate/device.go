// Package simulate generates realistic refrigerator telemetry for exercising
// the pipeline locally: slow daily temperature cycles around a cold-chain
// setpoint, correlated humidity, battery drain and occasional fault events.
package simulate

import (
	"math"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"smtrack.dev/telemetry-hub/internal/store"
)

// Thresholds for the simulated cold-chain range. Readings outside it raise
// temperature events.
const (
	tempLowLimit  = 2.0
	tempHighLimit = 8.0
)

// Device is a simulated sensor unit with a stable identity and its own
// reading generator.
type Device struct {
	Serial   string
	Name     string `fake:"{word}"`
	Ward     string
	Hospital string
	Firmware string `fake:"{appversion}"`

	gen *Generator
}

// NewDevice creates a device with fake identity attributes and a recognized
// serial prefix so its connectivity events pass the webhook filter.
func NewDevice() *Device {
	var device Device
	if err := gofakeit.Struct(&device); err != nil {
		return nil
	}

	device.Serial = gofakeit.Numerify("eTPV####-####")
	device.Ward = gofakeit.Numerify("WID-########")
	device.Hospital = gofakeit.Numerify("HID-########")
	device.gen = NewGenerator()
	return &device
}

// Record returns the device as a store record for registration.
func (d *Device) Record() *store.Device {
	return &store.Device{
		Serial:     d.Serial,
		Name:       d.Name,
		StaticName: d.Name,
		Ward:       d.Ward,
		Hospital:   d.Hospital,
		Status:     true,
		Firmware:   d.Firmware,
	}
}

// Reading produces the next telemetry report for this device.
func (d *Device) Reading(t time.Time) *store.DeviceLog {
	return d.gen.Reading(d.Serial, t)
}

// Generator produces correlated readings for one device.
type Generator struct {
	baselineTemp float64
	noise        float64
	battery      float64
}

// NewGenerator creates a generator with a randomized setpoint inside the
// cold-chain range.
// Note: math/rand is acceptable for simulation data.
func NewGenerator() *Generator {
	return &Generator{
		baselineTemp: tempLowLimit + rand.Float64()*(tempHighLimit-tempLowLimit-2) + 1, // #nosec G404
		noise:        rand.Float64() * 0.8,
		battery:      70 + rand.Float64()*30,
	}
}

// Reading generates one report. Temperature follows a daily cycle peaking in
// the afternoon when the unit door traffic is highest, with a small chance of
// an excursion, an open door, a pulled plug or a dropped uplink.
func (g *Generator) Reading(serial string, t time.Time) *store.DeviceLog {
	hour := float64(t.Hour())
	dailyCycle := 0.8 * math.Sin((hour-6)*math.Pi/12)
	noise := (rand.Float64() - 0.5) * g.noise

	temp := g.baselineTemp + dailyCycle + noise
	if rand.Float64() < 0.03 {
		temp += (rand.Float64() - 0.3) * 10 // excursion
	}

	humidity := math.Max(20, math.Min(95, 55-(temp-g.baselineTemp)*2+(rand.Float64()-0.5)*4))

	g.battery = math.Max(5, g.battery-rand.Float64()*0.05)

	return &store.DeviceLog{
		ID:              uuid.NewString(),
		Serial:          serial,
		Temp:            math.Round(temp*100) / 100,
		TempDisplay:     math.Round(temp*10) / 10,
		Humidity:        math.Round(humidity*100) / 100,
		HumidityDisplay: math.Round(humidity*10) / 10,
		SendTime:        t,
		Plug:            rand.Float64() > 0.01,
		Door1:           rand.Float64() < 0.02,
		Internet:        rand.Float64() > 0.01,
		ExtMemory:       true,
		Probe:           "1",
		Battery:         math.Round(g.battery*10) / 10,
		TempInternal:    math.Round((temp+rand.Float64())*100) / 100,
	}
}

// EventCode derives the fault event a reading would raise, or "" when the
// reading is nominal.
func EventCode(r *store.DeviceLog) string {
	switch {
	case r.Temp > tempHighLimit:
		return "TEMP/OVER"
	case r.Temp < tempLowLimit:
		return "TEMP/LOWER"
	case !r.Plug:
		return "AC/OFF"
	case r.Door1:
		return "P" + r.Probe + "/DOOR1/ON"
	case !r.Internet:
		return "INTERNET/OFF"
	default:
		return ""
	}
}
