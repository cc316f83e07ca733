package resolve

import "regexp"

// rule pairs a compiled pattern with an expansion producing the canonical
// command. Patterns are matched against lowercased input with the
// shorthand marker already stripped.
type rule struct {
	re     *regexp.Regexp
	expand func(groups map[string]string) Command
}

// simple returns an expansion that emits a fixed name with arguments
// drawn from the listed capture groups, in order. Empty captures
// (optional groups that didn't participate) are skipped.
func simple(name string, groupNames ...string) func(map[string]string) Command {
	return func(groups map[string]string) Command {
		var args []string
		for _, g := range groupNames {
			if v := groups[g]; v != "" {
				args = append(args, v)
			}
		}
		return Command{Name: name, Args: args}
	}
}

// fixed returns an expansion that emits a fixed name and argument list.
func fixed(name string, args ...string) func(map[string]string) Command {
	return func(map[string]string) Command {
		return Command{Name: name, Args: args}
	}
}

// rules is the ordered natural-language rule list. Evaluation is strictly
// top-to-bottom and the FIRST match wins, so more specific phrasings must
// come before the general ones (e.g. "delete the folder X" before
// "delete X"). Changing the order changes behavior; see the rule-order
// tests before reordering.
var rules = []rule{
	// File creation
	{
		re:     regexp.MustCompile(`^(?:create|make) (?:a )?(?:new )?(?:empty )?file (?:called |named )?(?P<name>\S+)$`),
		expand: simple("touch", "name"),
	},
	// Directory creation
	{
		re:     regexp.MustCompile(`^(?:create|make) (?:a )?(?:new )?(?:directory|folder) (?:called |named )?(?P<name>\S+)$`),
		expand: simple("mkdir", "name"),
	},
	// Listing
	{
		re:     regexp.MustCompile(`^(?:show|display|list) (?:the )?(?:files|contents)(?: (?:in|of)(?: the)? (?:directory |folder )?(?P<dir>\S+))?$`),
		expand: simple("ls", "dir"),
	},
	{
		re:     regexp.MustCompile(`^what(?:'s| is) in(?: the)? (?:directory|folder)(?: (?P<dir>\S+))?$`),
		expand: simple("ls", "dir"),
	},
	// File display
	{
		re:     regexp.MustCompile(`^(?:show|display|print|read) (?:the )?(?:contents of )?(?:the )?file (?P<name>\S+)$`),
		expand: simple("cat", "name"),
	},
	// Directory removal must precede the bare "delete X" rule.
	{
		re:     regexp.MustCompile(`^(?:remove|delete) (?:the )?(?:directory|folder) (?P<name>\S+)(?: (?:and (?:its|all its) contents|recursively))?$`),
		expand: func(g map[string]string) Command { return Command{Name: "rm", Args: []string{"-r", g["name"]}} },
	},
	{
		re:     regexp.MustCompile(`^(?:remove|delete) (?:the )?(?:file )?(?P<name>\S+)$`),
		expand: simple("rm", "name"),
	},
	// Copy / move / rename
	{
		re:     regexp.MustCompile(`^copy (?:the )?(?:directory|folder) (?P<src>\S+)(?: and (?:its|all its) contents)? to (?P<dst>\S+)$`),
		expand: func(g map[string]string) Command { return Command{Name: "cp", Args: []string{"-r", g["src"], g["dst"]}} },
	},
	{
		re:     regexp.MustCompile(`^copy (?:the )?(?:file )?(?P<src>\S+) to (?P<dst>\S+)$`),
		expand: simple("cp", "src", "dst"),
	},
	{
		re:     regexp.MustCompile(`^(?:move|rename) (?:the )?(?:file )?(?P<src>\S+) to (?P<dst>\S+)$`),
		expand: simple("mv", "src", "dst"),
	},
	// Navigation
	{
		re:     regexp.MustCompile(`^(?:change|switch|go) (?:to )?(?:the )?(?:directory|folder) (?P<dir>\S+)$`),
		expand: simple("cd", "dir"),
	},
	{
		re:     regexp.MustCompile(`^go (?:back|up)(?: one level)?$|^go to (?:the )?parent (?:directory|folder)$`),
		expand: fixed("cd", ".."),
	},
	{
		re:     regexp.MustCompile(`^go (?:to )?home$|^go to (?:the )?home (?:directory|folder)$`),
		expand: fixed("cd", "~"),
	},
	{
		re:     regexp.MustCompile(`^(?:show|display|print) (?:the )?current (?:directory|folder|path)$|^where am i$`),
		expand: fixed("pwd"),
	},
	// Search
	{
		re:     regexp.MustCompile(`^(?:find|search for|locate) (?:all )?files (?:named|called) (?P<name>\S+)$`),
		expand: func(g map[string]string) Command { return Command{Name: "find", Args: []string{".", "-name", g["name"]}} },
	},
	{
		re:     regexp.MustCompile(`^(?:find|search for) (?:all )?files containing (?:the )?(?:text|string|pattern) (?P<pat>\S+)$`),
		expand: func(g map[string]string) Command { return Command{Name: "grep", Args: []string{"-r", g["pat"], "."}} },
	},
	// System information
	{
		re:     regexp.MustCompile(`^(?:show|display) (?:the )?(?:system )?(?:cpu|processor).*$|^how(?: is|'s) (?:the )?(?:cpu|processor).*$`),
		expand: fixed("cpu"),
	},
	{
		re:     regexp.MustCompile(`^(?:show|display) (?:the )?(?:system )?memory.*$|^how(?: is|'s) (?:the )?memory.*$`),
		expand: fixed("memory"),
	},
	{
		re:     regexp.MustCompile(`^(?:show|display|list) (?:the )?(?:running )?processes$|^what processes are running$|^what(?:'s| is) running$`),
		expand: fixed("processes"),
	},
	{
		re:     regexp.MustCompile(`^(?:show|display) (?:the )?top processes$|^what(?:'s| is) (?:the )?system (?:doing|status)$`),
		expand: fixed("top"),
	},
	// Convenience compounds
	{
		re: regexp.MustCompile(`^create (?:a )?backup of (?:the )?file (?P<name>\S+)$`),
		expand: func(g map[string]string) Command {
			return Command{Name: "cp", Args: []string{g["name"], g["name"] + ".bak"}}
		},
	},
}
