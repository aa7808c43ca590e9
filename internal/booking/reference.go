package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewReference builds INV-YYYYMMDD-XXXXXX with six upper-case hex chars.
func NewReference(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), strings.ToUpper(suffix))
}
