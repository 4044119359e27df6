package samples

import (
	"strconv"
	"strings"

	"gorm.io/datatypes"

	"github.com/yungbote/vantage-backend/internal/domain/monitor"
	"github.com/yungbote/vantage-backend/internal/modules/aspects"
)

var scoringOrder = []string{monitor.StatusCritical, monitor.StatusWarning, monitor.StatusInfo, monitor.StatusOK}

// ParseValue reads a raw sample value for the given value type. Boolean
// values accept true/false as well as 1/0.
func ParseValue(vt monitor.ValueType, raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if vt == monitor.ValueTypeBoolean {
		switch strings.ToLower(raw) {
		case "true", "1":
			return 1, true
		case "false", "0":
			return 0, true
		}
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Score returns the first status whose range holds the value, checking
// Critical, Warning, Info, then OK. Unparseable values and values outside
// every range score Invalid.
func Score(aspect map[string]string, raw string) string {
	vt, ok := monitor.ParseValueType(aspect["valueType"])
	if !ok {
		return monitor.StatusInvalid
	}
	v, ok := ParseValue(vt, raw)
	if !ok {
		return monitor.StatusInvalid
	}
	for _, status := range scoringOrder {
		rawRange, present := aspect[monitor.RangeField(status)]
		if !present || rawRange == "" || rawRange == "null" {
			continue
		}
		r, err := aspects.ParseRange(status, datatypes.JSON(rawRange))
		if err != nil {
			continue
		}
		if r.Contains(v) {
			return status
		}
	}
	return monitor.StatusInvalid
}
