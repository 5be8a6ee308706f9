package transformer

var rawColumns = []string{
	"class_title", "description", "handout", "handout_chinese", "handout_spanish",
	"handout_bengali", "handout_french", "handout_russian", "additional_materials",
	"prerequisite", "level", "series", "format",
}

// rawCatalog is the six-course export used across the package tests.
func rawCatalog() *Table {
	return NewTable(rawColumns,
		[]string{"Excel for Beginners", "Introductory course on excel meant for people with no experience with Microsoft Excel.",
			"https://example.com/excel-1", "https://example.com/excel-1_zh", "https://example.com/excel-1_es", "https://example.com/excel-1_bn", "", "",
			"", "", "Beginner", "microsoft office, office software, microsoft excel", "class"},
		[]string{"Intermediate python functions", "Learn more about functions in Python, including variable length arguments, default parameters, and argument passing.",
			"", "", "", "", "", "",
			"https://codesandbox.io/example", "Excel for Beginners", "Advanced", "python, programming", "class"},
		[]string{"Getting started with Canva", "Are you interested in making your own flyer or social media posts? Take this course to find out how to do it all with Canva!",
			"", "", "", "", "", "",
			"", "Photoshop basics", "Beginner", "graphic design, canva, media production", "class"},
		[]string{"Photoshop basics", "In this class, you will learn abou the fundamentals of using Photoshop as well as the core user interface.",
			"https://example.com/photoshop-basics", "", "", "", "https://example.com/photoshop-basics_fr", "https://example.com/photoshop-basics_ru",
			"", "", "Intermediate", "photo editing, adobe photoshop, media production", "class"},
		[]string{"Open Lab", "Come and get your computer related issues fixed.",
			"", "", "", "", "", "",
			"", "", "None", "support", "lab"},
		[]string{"Procreate Workshop: Create a brush", "Create your very own painting brush inside procreate!",
			"", "", "", "", "", "",
			"", "Getting started with Canva", "Intermediate", "ipad, digital art, media production, procreate", "workshop"},
	)
}

func column(t *Table, name string) []any {
	idx := t.Index(name)
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.V[idx]
	}
	return out
}
