package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/relmart/internal/app"
	"github.com/yungbote/relmart/internal/evolution"
)

type changeList []evolution.ColumnChange

func (l *changeList) String() string {
	parts := make([]string, len(*l))
	for i, c := range *l {
		parts[i] = c.Column + ":" + c.NewType
	}
	return strings.Join(parts, ",")
}

// Set parses column:type[:using expression].
func (l *changeList) Set(v string) error {
	parts := strings.SplitN(v, ":", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return fmt.Errorf("expected column:type[:using], got %q", v)
	}
	ch := evolution.ColumnChange{
		Column:  strings.TrimSpace(parts[0]),
		NewType: strings.TrimSpace(parts[1]),
	}
	if len(parts) == 3 {
		ch.Using = strings.TrimSpace(parts[2])
	}
	*l = append(*l, ch)
	return nil
}

func main() {
	var schema, relation string
	var changes changeList
	flag.StringVar(&schema, "schema", "raw", "schema of the base relation")
	flag.StringVar(&relation, "relation", "", "base relation to alter")
	flag.Var(&changes, "change", "column:type[:using] alteration (repeatable)")
	flag.Parse()

	if relation == "" || len(changes) == 0 {
		fmt.Println("usage: evolve_column -schema raw -relation orders -change total_cents:bigint")
		os.Exit(1)
	}

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	report, err := application.Evolution.AlterColumns(context.Background(), schema, relation, changes)
	if err != nil {
		fmt.Printf("schema evolution failed: %v\n", err)
		os.Exit(1)
	}
	if !report.Applied {
		fmt.Printf("nothing to do for %s.%s\n", schema, relation)
		return
	}
	for _, v := range report.DropOrder {
		fmt.Printf("dropped %s\n", v)
	}
	fmt.Printf("altered %s.%s (%d change(s))\n", schema, relation, len(changes))
	for _, v := range report.RecreateOrder {
		fmt.Printf("recreated %s\n", v)
	}
}
