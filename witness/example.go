package witness

// ExampleDepth is the accumulator depth of the example membership
const ExampleDepth = 8

// ExampleRoot is the accumulator root the example membership proves against
const ExampleRoot = "1799182282238172949735919814155076722550339245418717182904975644657694908682"

// Example returns a known-good depth-8 membership and its root
func Example() (*Witness, string) {
	return &Witness{
		S:           "1556192236082850800011477753789706164136184180458744644984084897070345066570",
		Tx:          "11796026433945242671642728009981778919257130899633207712788256867701213124641",
		Ty:          "14123514812924309349601388555201142092835117152213858542018278815110993732603",
		Ux:          "0",
		Uy:          "1",
		PathIndices: PathBits{0, 1, 0, 0, 0, 0, 0, 0},
		Siblings: []string{
			"19588054228312086345868691355666543386017663516009792796758663539234820257351",
			"17039564632945388764306088555981902867518200276453168439618972583980589320757",
			"7423237065226347324353380772367382631490014989348495481811164164159255474657",
			"11286972368698509976183087595462810875513684078608517520839298933882497716792",
			"3607627140608796879659380071776844901612302623152076817094415224584923813162",
			"19712377064642672829441595136074946683621277828620209496774504837737984048981",
			"20775607673010627194014556968476266066927294572720319469184847051418138353016",
			"3396914609616007258851405644437304192397291162432396347162513310381425243293",
		},
		Active: true,
	}, ExampleRoot
}
