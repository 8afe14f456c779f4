// Package classify maps raw device event codes to human-readable detail
// messages and dashboard counter buckets.
package classify

import (
	"fmt"
	"strings"
)

// Bucket is the dashboard counter a classified event contributes to.
type Bucket string

// Dashboard counter buckets.
const (
	BucketTemp     Bucket = "temp"
	BucketDoor     Bucket = "door"
	BucketInternet Bucket = "internet"
	BucketPlug     Bucket = "plug"
	BucketSDCard   Bucket = "sdcard"
	BucketNone     Bucket = "none"
)

// Classification is the result of classifying a raw event code.
type Classification struct {
	// Detail is the human-readable message derived from the code.
	Detail string
	// Bucket is the dashboard counter this event contributes to,
	// or BucketNone when the event is informational.
	Bucket Bucket
}

// Classify derives a detail message and counter bucket from a slash-delimited
// event code such as "TEMP/OVER" or "P1/SENSOR/OFF". It is pure and total:
// the same code always yields the same result and no input fails. Codes that
// match no known shape degenerate to a generic door-style message.
//
// Known shapes:
//
//	TEMP/OVER | TEMP/LOWER | TEMP/<other>       temperature threshold events
//	SD/ON | SD/OFF                              external memory events
//	AC/ON | AC/OFF                              mains power events
//	INTERNET/ON | INTERNET/OFF                  connectivity events
//	REPORT/<text>                               free-form device report
//	<probe>/TEMP/OVER|LOWER|<other>             per-probe temperature events
//	<probe>/SENSOR/ON|OFF                       per-probe sensor events
//	<probe>/<channel>/ON|OFF                    per-probe door-style events
func Classify(code string) Classification {
	seg := split(code)

	switch seg[0] {
	case "TEMP":
		return Classification{
			Detail: temperatureDetail("Temperature ", seg[1]),
			Bucket: BucketTemp,
		}
	case "SD":
		if seg[1] == "ON" {
			return Classification{Detail: "SDCard connected", Bucket: BucketNone}
		}
		return Classification{Detail: "SDCard failed", Bucket: BucketSDCard}
	case "AC":
		if seg[1] == "ON" {
			return Classification{Detail: "Power on", Bucket: BucketNone}
		}
		return Classification{Detail: "Power off", Bucket: BucketPlug}
	case "INTERNET":
		detail := fmt.Sprintf("%s: %s is %s", seg[0], seg[1], openState(seg[2]))
		if seg[1] == "OFF" {
			return Classification{Detail: detail, Bucket: BucketInternet}
		}
		return Classification{Detail: detail, Bucket: BucketNone}
	case "REPORT":
		return Classification{Detail: "Report: " + seg[1], Bucket: BucketNone}
	}

	// Unrecognized first segment: treat it as a probe identifier and let the
	// second segment select the category.
	switch seg[1] {
	case "TEMP":
		// Every temperature event, including the return to normal, lands on
		// the temperature counter so the dashboard reflects recoveries too.
		return Classification{
			Detail: temperatureDetail(seg[0]+": Temperature ", seg[2]),
			Bucket: BucketTemp,
		}
	case "SENSOR":
		// The device reports SENSOR/ON when the probe lead is pulled.
		if seg[2] == "ON" {
			return Classification{Detail: seg[0] + ": Sensor disconnected", Bucket: BucketNone}
		}
		return Classification{Detail: seg[0] + ": Sensor connected", Bucket: BucketNone}
	default:
		detail := fmt.Sprintf("%s: %s is %s", seg[0], seg[1], openState(seg[2]))
		if seg[2] == "ON" {
			return Classification{Detail: detail, Bucket: BucketDoor}
		}
		return Classification{Detail: detail, Bucket: BucketNone}
	}
}

// Detail returns only the human-readable message for a code.
func Detail(code string) string {
	return Classify(code).Detail
}

// Counts tallies a list of raw event codes into dashboard buckets.
type Counts struct {
	Temp     int `json:"temp"`
	Door     int `json:"door"`
	Internet int `json:"internet"`
	Plug     int `json:"plug"`
	SDCard   int `json:"sdcard"`
}

// Add classifies a code and increments the matching counter.
func (c *Counts) Add(code string) {
	switch Classify(code).Bucket {
	case BucketTemp:
		c.Temp++
	case BucketDoor:
		c.Door++
	case BucketInternet:
		c.Internet++
	case BucketPlug:
		c.Plug++
	case BucketSDCard:
		c.SDCard++
	}
}

// Count classifies every code and returns the aggregated counters.
func Count(codes []string) Counts {
	var c Counts
	for _, code := range codes {
		c.Add(code)
	}
	return c
}

// split breaks a code on "/" and pads to three segments so callers can index
// segments without bounds checks.
func split(code string) [3]string {
	var seg [3]string
	for i, s := range strings.SplitN(code, "/", 3) {
		seg[i] = s
	}
	return seg
}

func temperatureDetail(prefix, threshold string) string {
	switch threshold {
	case "OVER":
		return prefix + "is too high"
	case "LOWER":
		return prefix + "is too low"
	default:
		return prefix + "returned to normal"
	}
}

func openState(terminal string) string {
	if terminal == "ON" {
		return "opened"
	}
	return "closed"
}
