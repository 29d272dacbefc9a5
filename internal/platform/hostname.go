package platform

import (
	"fmt"
	"strings"
)

// InstanceHostname derives the DNS name for an instance.
// Example: 7f3c9d2a-....db.example.com
func InstanceHostname(instanceID, dnsDomain string) string {
	return fmt.Sprintf("%s.%s", instanceID, strings.TrimPrefix(dnsDomain, "."))
}
