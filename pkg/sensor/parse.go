package sensor

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Parser decodes lines received from the microcontroller.
//
// Two formats are accepted:
//
//	{"fsr0": 1.23, "fsr1": 0.5}   JSON object, keys used as-is
//	1.23 0.5 0.0 ...              whitespace separated, matched to registry order
type Parser struct {
	reg    *Registry
	logger *log.Logger
}

// NewParser creates a parser that grows reg when wider packets arrive.
func NewParser(reg *Registry, logger *log.Logger) *Parser {
	if logger == nil {
		logger = log.Default()
	}
	return &Parser{reg: reg, logger: logger}
}

// Parse converts one line into a raw reading. It returns false for lines that
// must be skipped: empty, undecodable, short or containing non-numeric values.
func (p *Parser) Parse(line string) (Raw, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}

	if strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}") {
		return p.parseJSON(line)
	}

	return p.parseFields(strings.Fields(line))
}

func (p *Parser) parseJSON(line string) (Raw, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil || obj == nil {
		return nil, false
	}

	raw := make(Raw, len(obj))
	for key, v := range obj {
		value, ok := toFloat(v)
		if !ok {
			// Unknown keys may carry anything; a registry key must be numeric.
			if _, known := p.reg.Index(key); known {
				return nil, false
			}
			continue
		}
		raw[key] = value
	}
	return raw, true
}

func (p *Parser) parseFields(fields []string) (Raw, bool) {
	if len(fields) == 0 {
		return nil, false
	}

	if p.reg.Grow(len(fields)) {
		p.logger.Info("detected more sensors, growing registry", "sensors", len(fields))
	}

	keys := p.reg.Keys()
	if len(fields) < len(keys) {
		// Truncated line, zero filling would shift columns.
		return nil, false
	}

	raw := make(Raw, len(keys))
	for i, key := range keys {
		value, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || !finite(value) {
			return nil, false
		}
		raw[key] = value
	}
	return raw, true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, finite(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || !finite(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
