package etl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"market-etl-lab/internal/domain"
)

// ParsedRecord is the schema normalizer's output: a validated bar plus
// whether its timestamp arrived without zone information. The time
// normalizer resolves naive wall-clock times against the source timezone.
type ParsedRecord struct {
	Bar   *domain.Bar
	Naive bool
}

// Canonical fields required in every record after mapping.
var requiredFields = []string{"timestamp", "open", "high", "low", "close"}

// NormalizeSchema maps heterogeneous raw records onto validated bars.
// Records violating the OHLC domain invariant or missing required fields
// are dropped and counted as invalid_records; the run fails only when the
// canonical schema cannot be established at all, or the invalid fraction
// crosses cfg.MaxInvalidFraction.
func NormalizeSchema(records []domain.RawRecord, cfg SchemaConfig, report *domain.QualityReport) ([]ParsedRecord, error) {
	report.Touch(domain.StageSchema)
	report.Add(domain.StageSchema, domain.CounterRecordsIn, int64(len(records)))

	if len(records) == 0 {
		report.Add(domain.StageSchema, domain.CounterRecordsOut, 0)
		return nil, nil
	}

	lookup := buildColumnLookup(cfg.ColumnMap)

	// Structural check against the first record: a required field with no
	// matching column means the schema cannot be established at all.
	if field, ok := missingRequiredField(records[0], lookup); ok {
		return nil, fmt.Errorf("%w: no column maps to required field %q", ErrSchema, field)
	}

	out := make([]ParsedRecord, 0, len(records))
	invalid := int64(0)

	for _, raw := range records {
		rec, err := parseRecord(raw, lookup, cfg)
		if err != nil {
			invalid++
			continue
		}
		out = append(out, rec)
	}

	report.Add(domain.StageSchema, domain.CounterInvalidRecords, invalid)
	report.Add(domain.StageSchema, domain.CounterDroppedRecords, invalid)
	report.Add(domain.StageSchema, domain.CounterRecordsOut, int64(len(out)))

	if frac := float64(invalid) / float64(len(records)); frac > cfg.MaxInvalidFraction {
		return nil, fmt.Errorf("%w: %d of %d records invalid (%.0f%% > %.0f%% budget)",
			ErrSchema, invalid, len(records), frac*100, cfg.MaxInvalidFraction*100)
	}
	return out, nil
}

// buildColumnLookup inverts the canonical->variants map into a
// case-insensitive variant->canonical lookup.
func buildColumnLookup(columnMap map[string][]string) map[string]string {
	lookup := make(map[string]string)
	for canonical, variants := range columnMap {
		for _, v := range variants {
			lookup[strings.ToLower(v)] = canonical
		}
	}
	return lookup
}

func missingRequiredField(raw domain.RawRecord, lookup map[string]string) (string, bool) {
	present := make(map[string]bool, len(raw))
	for col := range raw {
		if canonical, ok := lookup[strings.ToLower(col)]; ok {
			present[canonical] = true
		}
	}
	for _, field := range requiredFields {
		if !present[field] {
			return field, true
		}
	}
	return "", false
}

func parseRecord(raw domain.RawRecord, lookup map[string]string, cfg SchemaConfig) (ParsedRecord, error) {
	mapped := make(map[string]any, len(raw))
	for col, val := range raw {
		if canonical, ok := lookup[strings.ToLower(col)]; ok {
			mapped[canonical] = val
		}
	}
	for _, field := range requiredFields {
		if _, ok := mapped[field]; !ok {
			return ParsedRecord{}, fmt.Errorf("missing field %q", field)
		}
	}

	ts, naive, err := toTimestamp(mapped["timestamp"])
	if err != nil {
		return ParsedRecord{}, fmt.Errorf("timestamp: %w", err)
	}

	bar := &domain.Bar{Timestamp: ts}
	if bar.Open, err = toFloat(mapped["open"]); err != nil {
		return ParsedRecord{}, fmt.Errorf("open: %w", err)
	}
	if bar.High, err = toFloat(mapped["high"]); err != nil {
		return ParsedRecord{}, fmt.Errorf("high: %w", err)
	}
	if bar.Low, err = toFloat(mapped["low"]); err != nil {
		return ParsedRecord{}, fmt.Errorf("low: %w", err)
	}
	if bar.Close, err = toFloat(mapped["close"]); err != nil {
		return ParsedRecord{}, fmt.Errorf("close: %w", err)
	}
	if v, ok := mapped["volume"]; ok && v != nil {
		vol, err := toFloat(v)
		if err != nil {
			return ParsedRecord{}, fmt.Errorf("volume: %w", err)
		}
		bar.Volume = &vol
	}

	bar.Symbol = cfg.DefaultSymbol
	if s, ok := mapped["symbol"]; ok {
		if str := strings.TrimSpace(fmt.Sprint(s)); str != "" && str != "<nil>" {
			bar.Symbol = strings.ToUpper(str)
		}
	}

	if err := bar.Validate(cfg.PriceTolerance); err != nil {
		return ParsedRecord{}, err
	}
	return ParsedRecord{Bar: bar, Naive: naive}, nil
}

// toFloat coerces the numeric types an ingestion collaborator may hand
// over: Go numbers or decimal strings.
func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// Timestamp layouts accepted from raw records. Layouts without zone
// info produce naive timestamps resolved later by the time normalizer.
var (
	awareLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006.01.02 15:04:05",
		"2006.01.02 15:04",
		"2006-01-02",
	}
)

// toTimestamp parses the raw timestamp value. Epoch numbers are absolute
// instants (seconds, or milliseconds when large enough); strings without
// zone info are parsed as naive wall-clock times.
func toTimestamp(v any) (time.Time, bool, error) {
	switch x := v.(type) {
	case time.Time:
		return x, false, nil
	case int64:
		return epochToTime(float64(x)), false, nil
	case int:
		return epochToTime(float64(x)), false, nil
	case float64:
		return epochToTime(x), false, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range awareLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, false, nil
			}
		}
		for _, layout := range naiveLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true, nil
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochToTime(f), false, nil
		}
		return time.Time{}, false, fmt.Errorf("unparseable timestamp %q", s)
	default:
		return time.Time{}, false, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// epochToTime interprets a numeric timestamp: values above 1e12 are
// milliseconds, everything else seconds.
func epochToTime(v float64) time.Time {
	if v > 1e12 {
		return time.UnixMilli(int64(v)).UTC()
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
