package yaml

import (
	"testing"
)

// FuzzDefinitionParser tests the YAML parser against random/malformed inputs
// to detect crashes, panics, or unexpected behavior.
//
// Run with: go test -fuzz=FuzzDefinitionParser -fuzztime=30s
func FuzzDefinitionParser(f *testing.F) {
	f.Add([]byte(lapceDefinition))
	f.Add([]byte(`product: Lapce
binary: lapce
platforms:
  windows:
    targets: [x86_64-pc-windows-msvc]
    installer:
      source: lapce.wxs
`))

	// Seed with edge cases
	f.Add([]byte(``))
	f.Add([]byte(`product: ""` + "\n"))
	f.Add([]byte(`{}`))
	f.Add([]byte(`[]`))
	f.Add([]byte("product: Lapce\n  bad"))
	f.Add([]byte("product: Lapce\nproduct: duplicate"))
	f.Add([]byte("product: Lapce\nbinary: lapce\nplatforms:\n  macos: ~\n"))

	parser := NewDefinitionParser()

	f.Fuzz(func(t *testing.T, data []byte) {
		def, err := parser.Parse(data)
		if err != nil {
			return
		}
		if def.Product == "" || def.Binary == "" || def.Profile == "" {
			t.Errorf("accepted definition with empty required field: %+v", def)
		}
		for platform, pd := range def.Platforms {
			if len(pd.Targets) == 0 {
				t.Errorf("accepted platform %s without targets", platform)
			}
		}
	})
}
