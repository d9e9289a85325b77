package cyclesinput

import (
	"fmt"
	"strings"
)

// DefaultControlTemplate is the simulator control file for a single-crop,
// one-year rotation without reinitialization.
const DefaultControlTemplate = `## SIMULATION YEARS ##

SIMULATION_START_YEAR   $start_year
SIMULATION_END_YEAR     $end_year
ROTATION_SIZE           $rotation_size

## SIMULATION OPTIONS ##

USE_REINITIALIZATION    $reinit
ADJUSTED_YIELDS         0
HOURLY_INFILTRATION     1
AUTOMATIC_NITROGEN      0
AUTOMATIC_PHOSPHORUS    0
AUTOMATIC_SULFUR        0
DAILY_WEATHER_OUT       0
DAILY_CROP_OUT          0
DAILY_RESIDUE_OUT       0
DAILY_WATER_OUT         0
DAILY_NITROGEN_OUT      0
DAILY_SOIL_CARBON_OUT   0
DAILY_SOIL_LYR_CN_OUT   0
ANNUAL_SOIL_OUT         0
ANNUAL_PROFILE_OUT      0
ANNUAL_NFLUX_OUT        0

## OTHER INPUT FILES ##

CROP_FILE               $crop_file
OPERATION_FILE          $operation_file
SOIL_FILE               $soil_file
WEATHER_FILE            $weather_file
REINIT_FILE             N/A
`

// MissingPlaceholderError reports a template placeholder without a value.
type MissingPlaceholderError struct {
	Name string
}

func (e *MissingPlaceholderError) Error() string {
	return fmt.Sprintf("no value for placeholder $%s", e.Name)
}

// RenderControl substitutes $name and ${name} placeholders in tmpl. "$$"
// renders a literal "$". Every placeholder must have a value.
func RenderControl(tmpl string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '$' || i+1 == len(tmpl) {
			b.WriteByte(c)
			continue
		}

		next := tmpl[i+1]
		switch {
		case next == '$':
			b.WriteByte('$')
			i++
		case next == '{':
			end := strings.IndexByte(tmpl[i+2:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			name := tmpl[i+2 : i+2+end]
			v, ok := values[name]
			if !ok {
				return "", &MissingPlaceholderError{Name: name}
			}
			b.WriteString(v)
			i += 2 + end
		case isIdentStart(next):
			j := i + 1
			for j < len(tmpl) && isIdent(tmpl[j]) {
				j++
			}
			name := tmpl[i+1 : j]
			v, ok := values[name]
			if !ok {
				return "", &MissingPlaceholderError{Name: name}
			}
			b.WriteString(v)
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
