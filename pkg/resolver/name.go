package resolver

import (
	"path/filepath"
	"strings"
)

var (
	skipClassTokens = []string{"runjar", "start", "://"}
	skipClassParts  = map[string]bool{"main": true, "org": true, "server": true, "templeton": true, "*": true}
	skipPathParts   = map[string]bool{"share": true, "java": true, "*": true}
	classpathFlags  = map[string]bool{"-cp": true, "-classpath": true, "--class-path": true}
)

// DisplayName derives a short human readable name for a process: the
// lowercased base name of argv[0], or for java the meaningful part of the
// main class.
func DisplayName(cmdline, name string) string {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return strings.ToLower(name)
	}
	cmd := strings.ToLower(filepath.Base(fields[0]))
	if cmd == "java" {
		return javaName(fields[1:])
	}
	return cmd
}

func javaName(args []string) string {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "/") {
			continue
		}
		if i > 0 && classpathFlags[args[i-1]] {
			continue
		}
		lower := strings.ToLower(arg)
		skip := false
		for _, tok := range skipClassTokens {
			if strings.Contains(lower, tok) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		if n := classKeyword(arg); n != "" {
			return n
		}
	}
	return "java"
}

// classKeyword picks the last significant dotted segment of a class or path.
func classKeyword(class string) string {
	parts := strings.Split(class, ".")
	for i := len(parts) - 1; i >= 0; i-- {
		kw := strings.TrimSpace(parts[i])
		if skipClassParts[strings.ToLower(kw)] {
			continue
		}
		if !strings.Contains(kw, "/") {
			return kw
		}
		segs := strings.Split(kw, "/")
		for j := len(segs) - 1; j >= 0; j-- {
			if !skipPathParts[strings.ToLower(segs[j])] {
				return segs[j]
			}
		}
		return ""
	}
	return ""
}
