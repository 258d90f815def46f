package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// Receipt returns a short human-readable id in the form PREFIX-DDDDDD, where
// the digits are the last six of the current epoch-millis. Used for
// transaction and movement ids printed on receipts.
func Receipt(prefix string, at time.Time) string {
	millis := fmt.Sprintf("%d", at.UnixMilli())
	if len(millis) > 6 {
		millis = millis[len(millis)-6:]
	}
	return fmt.Sprintf("%s-%s", prefix, millis)
}
