package specifier

import (
    "fmt"
    "io"
    "strings"
)

// WriteHelp lists every class and alias with its help text.
func (r *Registry) WriteHelp(w io.Writer) {
    fmt.Fprintln(w, "Specifiers:")
    for _, c := range r.Classes() {
        kind := "leaf"
        if c.Overlay { kind = "overlay" }
        fmt.Fprintf(w, "\n  %s (%s)\n", strings.Join(c.Prefixes, " "), kind)
        for _, l := range strings.Split(c.Help, "\n") {
            fmt.Fprintf(w, "      %s\n", l)
        }
    }
    fmt.Fprintln(w, "\nAliases:")
    for _, a := range r.Aliases() {
        fmt.Fprintf(w, "\n  %s\n      %s\n", a.Prefix, a.Help)
    }
}
