//go:build !unix

package whitelist

import "os"

// writable probes by creating and removing a scratch file, since access(2)
// has no portable equivalent here.
func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".shellguard-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
