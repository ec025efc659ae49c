package ifchanged

// Block is one if-changed / then-change span in a source file. Start and
// End are 1-based line numbers of the marker lines themselves, so an edit
// to either marker counts as an edit to the block.
type Block struct {
	Name        string
	Named       bool
	Start       int
	End         int
	Obligations []Obligation
}

// Obligation is a single entry of a then-change list. Pattern is the path
// or glob as written, with an empty pattern standing for the containing
// file itself. Line is the line of the then-change marker that declared
// the list.
type Obligation struct {
	Pattern string
	Name    string
	Named   bool
	Line    int
}
