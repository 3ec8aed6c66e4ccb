package pd

// MarshalFunc converts an application dataset into its wire payload.
// cachedDS is an opaque handle the PD core round-trips between calls on
// the same element but never inspects (§6).
type MarshalFunc func(refCon any, comID uint32, src []byte, cachedDS any) (dst []byte, newCachedDS any, err error)

// UnmarshalFunc converts a wire payload back into an application dataset.
type UnmarshalFunc func(refCon any, comID uint32, src []byte, cachedDS any) (dst []byte, newCachedDS any, err error)
