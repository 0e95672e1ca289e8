package uapi

// NextBulkTag advances a rotating bulk tag: increment, and if the result
// wraps to 0, increment again. Cycles through 1..255.
func NextBulkTag(cur byte) byte {
	cur++
	if cur == 0 {
		cur++
	}
	return cur
}

// NextIntrTag advances the interrupt tag: increment, reset to 2 once it
// exceeds 127. 1 is reserved for SRQ.
func NextIntrTag(cur byte) byte {
	cur++
	if cur > IntrTagMax {
		cur = IntrTagMin
	}
	return cur
}

// TagState holds the rotating bulk and interrupt tags for one device. The
// I/O exclusion lock in the device record makes every access to a
// TagState single-threaded; TagState itself holds no lock.
type TagState struct {
	BTag          byte // next bulk tag to use
	BTagLastWrite byte // tag recorded on the last bulk-out send
	BTagLastRead  byte // tag recorded on the last bulk-in request
	IinBTag       byte // next expected interrupt tag
}

// NewTagState returns a TagState with the defaults an attach initializes:
// bTag=1, iinBTag=2.
func NewTagState() *TagState {
	return &TagState{BTag: 1, IinBTag: IntrTagMin}
}

// AdvanceBulk returns the current bulk tag and advances BTag for the next
// call. It leaves BTagLastWrite and BTagLastRead alone; callers record
// those themselves.
func (ts *TagState) AdvanceBulk() byte {
	tag := ts.BTag
	ts.BTag = NextBulkTag(ts.BTag)
	return tag
}

// AdvanceIntr advances the interrupt tag after a READ_STB exchange.
func (ts *TagState) AdvanceIntr() {
	ts.IinBTag = NextIntrTag(ts.IinBTag)
}
