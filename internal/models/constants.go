package models

// OriginalCollection is the original-store collection for kind.
func OriginalCollection(kind Kind) string {
	return "original_" + string(kind) + "_chunks"
}

// ProcessedCollection is the processed-store collection for kind.
func ProcessedCollection(kind Kind) string {
	return "processed_" + string(kind) + "_chunks"
}

const (
	// json fallback file suffixes
	OriginalFileSuffix  = "_original.json"
	ProcessedFileSuffix = "_processed.json"

	TableCellSep = " | "
)

var (
	SummaryPromptTemplate = `สรุปเนื้อหาต่อไปนี้ให้กระชับและเข้าใจง่าย (ภาษาไทย):

ประเภทเนื้อหา: %s
เนื้อหา: %s...

กรุณาสรุปให้ไม่เกิน 3 ประโยค
`
)
