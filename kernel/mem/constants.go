package mem

// PageShift is equal to log2(PageSize). It converts a physical or virtual
// address to a page/frame number (shift right by PageShift) and back (shift
// left by PageShift).
const PageShift = 12

// PageSize defines the system's page size in bytes, per the target
// architecture's 4 KiB paging granularity.
const PageSize = Size(1 << PageShift)
