package config

import (
	"os"
	"path/filepath"
)

// Get returns the JATE build configuration anchored at the directory the
// tool runs from. A new value is built on every call.
func Get() *Config {
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}
	return ForRoot(root)
}

// ForRoot returns the JATE build configuration anchored at root.
func ForRoot(root string) *Config {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	return &Config{
		Mode:    ModeDevelopment,
		Context: root,
		Entry: []Entry{
			{Name: "main", Import: "./src/js/index.js"},
			{Name: "install", Import: "./src/js/install.js"},
		},
		Output: Output{
			Filename:   "[name].bundle.js",
			Path:       filepath.Join(root, "dist"),
			PublicPath: "/",
		},
		Plugins: []PluginDescriptor{
			{
				Name: PluginHTML,
				Options: &HTMLOptions{
					Template: "./index.html",
					Title:    "Text Editor",
				},
			},
			{
				Name: PluginInjectManifest,
				Options: &InjectManifestOptions{
					SwSrc:  "./src-sw.js",
					SwDest: "src-sw.js",
				},
			},
			{
				Name: PluginPWAManifest,
				Options: &PWAManifestOptions{
					Fingerprints:    false,
					Inject:          true,
					Name:            "Just another text editor",
					ShortName:       "JATE",
					Description:     "Just another text editor!",
					BackgroundColor: "#225CA3",
					ThemeColor:      "#225CA3",
					StartURL:        "/",
					PublicPath:      "/",
					Icons: []Icon{{
						Src:         filepath.Join(root, "src", "images", "logo.png"),
						Sizes:       []int{96, 128, 192, 256, 384, 512},
						Destination: filepath.Join("assets", "icons"),
					}},
				},
			},
		},
		Module: Module{
			Rules: []Rule{
				{
					Test: MustPattern(`(?i)\.css$`),
					Use: []LoaderRef{
						{Loader: LoaderCSS},
						{Loader: LoaderStyle},
					},
				},
				{
					Test:    MustPattern(`\.m?js$`),
					Exclude: MustPattern(`node_modules`),
					Use: []LoaderRef{{
						Loader: LoaderTranspile,
						Options: &TranspileOptions{
							Presets: []string{"env"},
							Plugins: []string{"object-rest-spread", "transform-runtime"},
						},
					}},
				},
			},
		},
	}
}
