package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smtrack.dev/telemetry-hub/internal/tsdb"
	"smtrack.dev/telemetry-hub/pkg/scope"
)

// Graph spans accepted by TemperatureGraph.
const (
	SpanDay    = "day"
	SpanWeek   = "week"
	SpanMonth  = "month"
	SpanCustom = "custom"
)

// NotificationHistory returns the archived notifications visible to the
// caller for one day. An empty day means the last 24 hours.
func (s *Service) NotificationHistory(ctx context.Context, claims scope.Claims, day string) ([]tsdb.Row, error) {
	sc, err := scope.Resolve(claims)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", s.history.Bucket())
	b.WriteString(rangeClause(day))
	b.WriteString(`  |> filter(fn: (r) => r._measurement == "notification")` + "\n")
	b.WriteString(scopeClause(sc))
	b.WriteString(`  |> sort(columns: ["_time"], desc: true)` + "\n")

	return s.history.Query(ctx, b.String())
}

// DeviceHistory returns the archived reports for one device for one day. An
// empty day means the last 24 hours.
func (s *Service) DeviceHistory(ctx context.Context, serial, day string) ([]tsdb.Row, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", s.history.Bucket())
	b.WriteString(rangeClause(day))
	b.WriteString(`  |> filter(fn: (r) => r._measurement == "history")` + "\n")
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r.sn == %q)\n", fluxEscape(serial))
	b.WriteString(`  |> sort(columns: ["_time"], desc: true)` + "\n")

	return s.history.Query(ctx, b.String())
}

// TemperatureGraph returns the temperature series for one device over a
// preset or custom span. start and stop are only consulted for SpanCustom.
func (s *Service) TemperatureGraph(ctx context.Context, serial, span string, start, stop time.Time) ([]tsdb.Row, error) {
	var window string
	switch span {
	case SpanDay:
		window = "  |> range(start: -1d)\n"
	case SpanWeek:
		window = "  |> range(start: -1w)\n"
	case SpanMonth:
		window = "  |> range(start: -1mo)\n"
	case SpanCustom:
		if start.IsZero() || stop.IsZero() || !stop.After(start) {
			return nil, fmt.Errorf("%w: custom span needs a valid start and stop", ErrInvalidSpan)
		}
		window = fmt.Sprintf("  |> range(start: %s, stop: %s)\n",
			start.UTC().Format(time.RFC3339), stop.UTC().Format(time.RFC3339))
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSpan, span)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", s.history.Bucket())
	b.WriteString(window)
	b.WriteString(`  |> filter(fn: (r) => r._measurement == "logdays")` + "\n")
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r.sn == %q)\n", fluxEscape(serial))
	b.WriteString(`  |> filter(fn: (r) => r._field == "temp" or r._field == "humidity")` + "\n")
	b.WriteString(`  |> sort(columns: ["_time"])` + "\n")

	return s.history.Query(ctx, b.String())
}

// rangeClause builds the range stage for a YYYY-MM-DD day, or a trailing
// 24-hour window when the day is empty or malformed.
func rangeClause(day string) string {
	if day != "" {
		if start, err := time.Parse("2006-01-02", day); err == nil {
			stop := start.Add(24 * time.Hour)
			return fmt.Sprintf("  |> range(start: %s, stop: %s)\n",
				start.Format(time.RFC3339), stop.Format(time.RFC3339))
		}
	}
	return "  |> range(start: -1d)\n"
}

// scopeClause injects the caller's visibility predicate into the query, the
// same rule the relational store applies to live reads.
func scopeClause(sc scope.Scope) string {
	switch sc.Kind {
	case scope.KindWard:
		return fmt.Sprintf("  |> filter(fn: (r) => r.ward == %q)\n", fluxEscape(sc.Ward))
	case scope.KindHospital:
		return fmt.Sprintf("  |> filter(fn: (r) => r.hospital == %q)\n", fluxEscape(sc.Hospital))
	default:
		return fmt.Sprintf("  |> filter(fn: (r) => r.hospital != %q)\n", scope.DevelopmentHospital)
	}
}

// fluxEscape strips characters that would let a caller-supplied value break
// out of a Flux string literal.
func fluxEscape(v string) string {
	v = strings.ReplaceAll(v, `\`, "")
	return strings.ReplaceAll(v, `"`, "")
}
