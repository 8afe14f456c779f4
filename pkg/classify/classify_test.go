package classify_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"smtrack.dev/telemetry-hub/pkg/classify"
)

var _ = Describe("Classify", func() {
	Describe("temperature codes", func() {
		It("should report too high for TEMP/OVER", func() {
			c := classify.Classify("TEMP/OVER")
			Expect(c.Detail).To(Equal("Temperature is too high"))
			Expect(c.Bucket).To(Equal(classify.BucketTemp))
		})

		It("should report too low for TEMP/LOWER", func() {
			c := classify.Classify("TEMP/LOWER")
			Expect(c.Detail).To(Equal("Temperature is too low"))
			Expect(c.Bucket).To(Equal(classify.BucketTemp))
		})

		It("should report a return to normal for any other threshold", func() {
			c := classify.Classify("TEMP/NORMAL")
			Expect(c.Detail).To(Equal("Temperature returned to normal"))
			Expect(c.Bucket).To(Equal(classify.BucketTemp))
		})
	})

	Describe("power and storage codes", func() {
		It("should classify AC/OFF as a plug event", func() {
			c := classify.Classify("AC/OFF")
			Expect(c.Detail).To(Equal("Power off"))
			Expect(c.Bucket).To(Equal(classify.BucketPlug))
		})

		It("should not count AC/ON", func() {
			c := classify.Classify("AC/ON")
			Expect(c.Detail).To(Equal("Power on"))
			Expect(c.Bucket).To(Equal(classify.BucketNone))
		})

		It("should classify SD/OFF as an sdcard event", func() {
			c := classify.Classify("SD/OFF")
			Expect(c.Detail).To(Equal("SDCard failed"))
			Expect(c.Bucket).To(Equal(classify.BucketSDCard))
		})

		It("should not count SD/ON", func() {
			c := classify.Classify("SD/ON")
			Expect(c.Detail).To(Equal("SDCard connected"))
			Expect(c.Bucket).To(Equal(classify.BucketNone))
		})

		It("should count INTERNET/OFF against the internet bucket", func() {
			Expect(classify.Classify("INTERNET/OFF").Bucket).To(Equal(classify.BucketInternet))
		})

		It("should not count INTERNET/ON", func() {
			Expect(classify.Classify("INTERNET/ON").Bucket).To(Equal(classify.BucketNone))
		})
	})

	Describe("report codes", func() {
		It("should echo the report body", func() {
			c := classify.Classify("REPORT/daily")
			Expect(c.Detail).To(Equal("Report: daily"))
			Expect(c.Bucket).To(Equal(classify.BucketNone))
		})
	})

	Describe("probe-prefixed codes", func() {
		It("should classify per-probe temperature events", func() {
			c := classify.Classify("PROBE1/TEMP/LOWER")
			Expect(c.Detail).To(ContainSubstring("Temperature"))
			Expect(c.Detail).To(ContainSubstring("is too low"))
			Expect(c.Bucket).To(Equal(classify.BucketTemp))
		})

		It("should classify per-probe temperature recovery", func() {
			c := classify.Classify("PROBE1/TEMP/NORMAL")
			Expect(c.Detail).To(Equal("PROBE1: Temperature returned to normal"))
		})

		It("should classify sensor disconnects", func() {
			c := classify.Classify("PROBE2/SENSOR/ON")
			Expect(c.Detail).To(Equal("PROBE2: Sensor disconnected"))
			Expect(c.Bucket).To(Equal(classify.BucketNone))
		})

		It("should classify sensor reconnects", func() {
			c := classify.Classify("PROBE2/SENSOR/OFF")
			Expect(c.Detail).To(Equal("PROBE2: Sensor connected"))
		})

		It("should classify door openings against the door bucket", func() {
			c := classify.Classify("PROBE1/DOOR1/ON")
			Expect(c.Detail).To(Equal("PROBE1: DOOR1 is opened"))
			Expect(c.Bucket).To(Equal(classify.BucketDoor))
		})

		It("should not count door closings", func() {
			c := classify.Classify("PROBE1/DOOR1/OFF")
			Expect(c.Detail).To(Equal("PROBE1: DOOR1 is closed"))
			Expect(c.Bucket).To(Equal(classify.BucketNone))
		})
	})

	Describe("degenerate input", func() {
		It("should not fail on an empty code", func() {
			Expect(func() { classify.Classify("") }).NotTo(Panic())
		})

		It("should not fail on a code with no separators", func() {
			Expect(func() { classify.Classify("GARBAGE") }).NotTo(Panic())
		})

		It("should not fail on a code with many separators", func() {
			Expect(func() { classify.Classify("A/B/C/D/E/F") }).NotTo(Panic())
		})
	})

	Describe("determinism", func() {
		It("should yield identical output for repeated calls", func() {
			codes := []string{
				"TEMP/OVER", "TEMP/LOWER", "TEMP/NORMAL",
				"SD/ON", "SD/OFF", "AC/ON", "AC/OFF",
				"INTERNET/ON", "INTERNET/OFF", "REPORT/daily",
				"P1/TEMP/OVER", "P1/SENSOR/ON", "P1/DOOR1/ON", "",
			}
			for _, code := range codes {
				first := classify.Classify(code)
				second := classify.Classify(code)
				Expect(second).To(Equal(first), "code %q", code)
			}
		})
	})
})

var _ = Describe("Count", func() {
	It("should aggregate codes into dashboard buckets", func() {
		counts := classify.Count([]string{
			"TEMP/OVER",
			"P1/TEMP/LOWER",
			"P1/DOOR1/ON",
			"P1/DOOR1/OFF",
			"AC/OFF",
			"SD/OFF",
			"INTERNET/OFF",
			"REPORT/daily",
		})
		Expect(counts.Temp).To(Equal(2))
		Expect(counts.Door).To(Equal(1))
		Expect(counts.Plug).To(Equal(1))
		Expect(counts.SDCard).To(Equal(1))
		Expect(counts.Internet).To(Equal(1))
	})

	It("should return zero counts for no codes", func() {
		Expect(classify.Count(nil)).To(Equal(classify.Counts{}))
	})
})
