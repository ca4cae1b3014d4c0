package cabfile

// Cabinet is the capability set both the writer's Volume and the
// reader's parsed result expose: accessors over one volume's header,
// folder list, file list, and data-block list. It replaces the
// abstract-base-class-with-getters idiom the original implementation
// used (spec design notes §9) with a small Go interface.
type Cabinet interface {
	CabHeader() *Header
	CabFolders() []*Folder
	CabFiles() []*File
	CabDataBlocks() []*DataBlock
}
