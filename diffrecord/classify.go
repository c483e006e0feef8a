package diffrecord

import "github.com/h2non/filetype"

// sniffLen mirrors setCompressionDetails' 261-byte header read, the
// largest magic number filetype.Match ever needs.
const sniffLen = 261

// isBinary reports whether data sniffs as image/video/archive/audio/
// document content, the same binary/text fork
// GitBlob.setCompressionDetails runs before deciding whether a blob is
// worth line-diffing at all. A binary file is still recorded correctly
// (planEdit falls back to a single whole-span replacement), just never
// split at a line boundary that wouldn't mean anything for its bytes.
func isBinary(data []byte) bool {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	return filetype.IsImage(head) || filetype.IsVideo(head) ||
		filetype.IsArchive(head) || filetype.IsAudio(head) || filetype.IsDocument(head)
}
