// Package lua runs user suggestion filters written in Lua.
//
// Each script runs in its own sandboxed gopher-lua state with only the
// base, table, string and math libraries. A script defines a global
// function filter(s) that receives one suggestion as a table:
//
//	function filter(s)
//	    -- s.offset, s.length, s.text, s.message, s.short_message,
//	    -- s.category, s.rule, s.replacements
//	    return not s.text:match("^%u%u+$") -- keep unless all caps
//	end
//
// Returning false hides the suggestion. Any other value keeps it.
package lua
