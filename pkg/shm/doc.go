// Package shm is the client side of the segment arbiter.
//
// A Client asks the arbiter to create, look up or remove a named segment. Create
// and Get return a Handle that owns a duplicate of the arbiter's memfd
// descriptor and, once mapped, the mapping itself:
//
//	c, err := shm.NewClient(&shm.ClientConfig{Address: "@shm_man"})
//	// ...
//	h, err := c.Create(ctx, "frames", 1<<20)
//	// ...
//	defer h.Close()
//	if err := h.Map(0); err != nil {
//	  // ...
//	}
//	copy(h.Bytes(), payload)
//
// A Handle is not safe for concurrent use and must not be copied; use Move to
// hand ownership to another owner. Close is the only way to release the
// descriptor and the mapping.
package shm
