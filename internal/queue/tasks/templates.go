package tasks

import (
	"encoding/json"
	"strings"

	"github.com/lumnicode/engine/pkg/utils"
)

// FallbackPackageJSON builds a vite-based manifest from the stack tags and the
// planned dependency names. Versions are left as "latest".
func FallbackPackageJSON(projectName, description string, stack, deps []string) string {
	name := utils.Slug(projectName)
	if name == "" {
		name = "ai-generated-project"
	}
	dependencies := map[string]string{}
	devDependencies := map[string]string{"vite": "^5.0.0"}

	for _, d := range deps {
		if d = strings.TrimSpace(d); d != "" {
			dependencies[d] = "latest"
		}
	}
	if hasAny(stack, "react") {
		dependencies["react"] = "^18.2.0"
		dependencies["react-dom"] = "^18.2.0"
		devDependencies["@vitejs/plugin-react"] = "^4.2.0"
	}
	if hasAny(stack, "vue") {
		dependencies["vue"] = "^3.4.0"
		devDependencies["@vitejs/plugin-vue"] = "^5.0.0"
	}
	if hasAny(stack, "typescript") {
		devDependencies["typescript"] = "^5.3.0"
		devDependencies["@types/node"] = "^20.0.0"
		if hasAny(stack, "react") {
			devDependencies["@types/react"] = "^18.2.0"
			devDependencies["@types/react-dom"] = "^18.2.0"
		}
	}
	if hasAny(stack, "tailwind", "tailwindcss") {
		devDependencies["tailwindcss"] = "^3.4.0"
		devDependencies["postcss"] = "^8.4.0"
		devDependencies["autoprefixer"] = "^10.4.0"
	}
	for k := range devDependencies {
		delete(dependencies, k)
	}

	manifest := map[string]any{
		"name":        name,
		"version":     "0.1.0",
		"private":     true,
		"description": description,
		"type":        "module",
		"scripts": map[string]string{
			"dev":     "vite",
			"build":   "vite build",
			"preview": "vite preview",
		},
		"dependencies":    dependencies,
		"devDependencies": devDependencies,
	}
	b, _ := json.MarshalIndent(manifest, "", "  ")
	return string(b) + "\n"
}

func viteConfig(stack []string) string {
	var imp, plugin string
	switch {
	case hasAny(stack, "react"):
		imp, plugin = "import react from '@vitejs/plugin-react'\n", "react()"
	case hasAny(stack, "vue"):
		imp, plugin = "import vue from '@vitejs/plugin-vue'\n", "vue()"
	}
	return "import { defineConfig } from 'vite'\n" + imp + "\nexport default defineConfig({\n  plugins: [" + plugin + "],\n})\n"
}

const tsconfigJSON = `{
  "compilerOptions": {
    "target": "ES2020",
    "useDefineForClassFields": true,
    "lib": ["ES2020", "DOM", "DOM.Iterable"],
    "module": "ESNext",
    "skipLibCheck": true,
    "moduleResolution": "bundler",
    "resolveJsonModule": true,
    "isolatedModules": true,
    "noEmit": true,
    "jsx": "react-jsx",
    "strict": true
  },
  "include": ["src"]
}
`
