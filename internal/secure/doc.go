// Package secure keeps key material out of ordinary Go memory.
//
// It wraps memguard so that a derived key is:
//
//   - encrypted at rest in memory (XSalsa20Poly1305)
//   - protected from swapping via mlock where the platform allows it
//   - exposed in plaintext only inside a locked, guard-paged buffer
//
// # Usage
//
//	key, err := secure.NewKey(derived)
//	if err != nil {
//	    return err
//	}
//	defer key.Destroy()
//
//	err = key.Use(func(raw []byte) error {
//	    // raw is wiped when this function returns
//	    return nil
//	})
//
// # Platform Behavior
//
// On Linux mlock depends on RLIMIT_MEMLOCK. When locking fails memguard
// continues with standard memory rather than refusing to start.
//
// It does NOT protect against an attacker with root access to the running
// process, or hardware-level attacks.
package secure
