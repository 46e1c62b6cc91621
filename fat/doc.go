// Package fat implements a virtual FAT16 block device, which is useful
// for firmware that wants to show a few files to a USB host (an info
// text, documentation, an upload target) without keeping a disk image
// in memory.
//
// Every block is computed on demand from a small table of files: the
// boot sector, both copies of the file allocation table, the root
// directory and the file data. Writes from the host are interpreted
// against the same table. Housekeeping writes to the boot sector and
// the FAT are dropped, writes into the clusters of the one writable
// file are handed to its WriteSink, and directory writes are decoded to
// notice when the host finished an upload.
//
// Filenames are restricted to 8 characters + 3 characters for the file
// extension, and there are no subdirectories.
package fat
