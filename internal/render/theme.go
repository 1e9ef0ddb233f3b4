package render

// Theme holds colors for class graph rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	ClassFill  string
	EdgeSlot   string // class -> primary slot
	EdgeThunk  string // thunk -> adjusted target
	PureFill   string // missing (pure/deleted) slots
	MultiText  string // aliased symbols
	SubtleText string
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	ClassFill: "#ECEFF1", // blue-gray 50
	EdgeSlot:  "#424242", // dark gray
	EdgeThunk: "#E65100", // deep orange
	PureFill:  "#FFEBEE",
	MultiText: "#FC3D21", // NASA red

	SubtleText: "#9E9E9E",
}
