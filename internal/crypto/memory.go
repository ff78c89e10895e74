// Link key material helpers
package crypto

// Overwrites key material in place
func Memzero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
