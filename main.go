package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	storageengine "QuadDB/storage_engine"
	indexfile "QuadDB/storage_engine/access/indexfile_manager"
	"QuadDB/storage_engine/access/tupleindex"
	"QuadDB/types"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const help = `commands:
  tables             list tables
  use <name>         switch table
  create <name> <orders...>  create a table, e.g. create people SPO POS
  drop <name>        drop a table and its index files
  add <ids...>       insert a tuple
  del <ids...>       delete a tuple
  find <ids...>      match a pattern, * or _ for any column
  values <col> <ids...>  distinct ids of column col (0-based) in a pattern
  size               number of tuples
  check              verify every index
  stats              per-index tree statistics
  compact            rebuild every index in place
  exit`

func main() {
	dir := flag.String("dir", "data/repl", "index directory")
	backing := flag.String("backing", "file", "block manager: file, mapped or memory")
	quads := flag.Bool("quads", false, "quad table instead of triples")
	verbose := flag.Bool("v", false, "development logging")
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			panic(err)
		}
	}
	defer logger.Sync()

	b, ok := indexfile.ParseBacking(*backing)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown backing %q\n", *backing)
		os.Exit(2)
	}
	se, err := storageengine.NewStorageEngine(*dir, indexfile.Options{
		Backing:     b,
		CacheBlocks: indexfile.DefaultCacheBlocks,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer se.Close()

	name, orders := "triples", tupleindex.TripleOrders
	if *quads {
		name, orders = "quads", tupleindex.QuadOrders
	}
	table, err := se.GetOrCreateTable(name, orders)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	scanner := bufio.NewScanner(os.Stdin)
	// REPL
	for {
		fmt.Print("db> ")

		if !scanner.Scan() { // Ctrl+D pressed
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, "exit") {
			break
		}
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if next, ok, err := switchTable(se, table, fields); ok {
			if err != nil {
				fmt.Println("Error:", err)
				continue
			}
			table = next
			continue
		}
		if err := run(table, fields); err != nil {
			fmt.Println("Error:", err)
		}
	}
}

// switchTable handles the table-level commands. ok reports whether f was one.
func switchTable(se *storageengine.StorageEngine, cur *tupleindex.TupleTable, f []string) (next *tupleindex.TupleTable, ok bool, err error) {
	next = cur
	switch strings.ToLower(f[0]) {
	case "tables":
		for _, e := range se.Tables() {
			mark := " "
			if cur != nil && e.Name == cur.Name() {
				mark = "*"
			}
			fmt.Printf("%s %-16s %s\n", mark, e.Name, strings.Join(e.Orders, " "))
		}
	case "use":
		if len(f) != 2 {
			return cur, true, fmt.Errorf("usage: use <name>")
		}
		next, err = se.GetTable(f[1])
	case "create":
		if len(f) < 3 {
			return cur, true, fmt.Errorf("usage: create <name> <orders...>")
		}
		orders := make([]string, len(f)-2)
		for i, o := range f[2:] {
			orders[i] = strings.ToUpper(o)
		}
		next, err = se.CreateTable(f[1], orders, 0)
	case "drop":
		if len(f) != 2 {
			return cur, true, fmt.Errorf("usage: drop <name>")
		}
		if cur != nil && cur.Name() == f[1] {
			return cur, true, fmt.Errorf("cannot drop the table in use")
		}
		err = se.DropTable(f[1])
	default:
		return cur, false, nil
	}
	if err != nil {
		return cur, true, err
	}
	return next, true, nil
}

func run(table *tupleindex.TupleTable, f []string) error {
	cmd := strings.ToLower(f[0])
	switch cmd {
	case "add", "del", "find":
		t, err := parseTuple(f[1:], table.Arity(), cmd == "find")
		if err != nil {
			return err
		}
		switch cmd {
		case "add":
			added, err := table.Add(t)
			if err != nil {
				return err
			}
			if !added {
				fmt.Println("already present")
				return nil
			}
			fmt.Println("added")
		case "del":
			deleted, err := table.Delete(t)
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Println("not found")
				return nil
			}
			fmt.Println("deleted")
		default:
			x := table.BestIndex(t)
			found, err := table.Find(t)
			if err != nil {
				return err
			}
			for _, r := range found {
				fmt.Println(r)
			}
			fmt.Printf("(%s rows via %s)\n", humanize.Comma(int64(len(found))), x.Name())
		}
	case "values":
		if len(f) < 2 {
			return fmt.Errorf("usage: values <col> <ids...>")
		}
		col, err := strconv.Atoi(f[1])
		if err != nil {
			return fmt.Errorf("bad column %q", f[1])
		}
		t, err := parseTuple(f[2:], table.Arity(), true)
		if err != nil {
			return err
		}
		vals, err := table.Values(t, col)
		if err != nil {
			return err
		}
		fmt.Println(vals.ToArray())
		fmt.Printf("(%s distinct)\n", humanize.Comma(int64(vals.GetCardinality())))
	case "size":
		n, err := table.Size()
		if err != nil {
			return err
		}
		fmt.Println(humanize.Comma(n))
	case "check":
		if err := table.Check(); err != nil {
			return err
		}
		fmt.Println("ok")
	case "stats":
		for _, x := range table.Indexes() {
			s, err := x.Tree().Stats()
			if err != nil {
				return err
			}
			fmt.Printf("%-14s %s\n", x.Name(), s)
		}
	case "compact":
		if err := table.Compact(); err != nil {
			return err
		}
		fmt.Println("compacted")
	case "help", "?":
		fmt.Println(help)
	default:
		return fmt.Errorf("unknown command %q, try help", f[0])
	}
	return nil
}

func parseTuple(args []string, arity int, pattern bool) (types.Tuple, error) {
	if len(args) != arity {
		return nil, fmt.Errorf("expected %d ids, got %d", arity, len(args))
	}
	t := make(types.Tuple, arity)
	for i, a := range args {
		if a == "*" || a == "_" {
			if !pattern {
				return nil, fmt.Errorf("wildcard %q only allowed in find", a)
			}
			continue
		}
		v, err := strconv.ParseUint(a, 10, 64)
		if err != nil || v == 0 {
			return nil, fmt.Errorf("bad node id %q", a)
		}
		t[i] = types.NodeID(v)
	}
	return t, nil
}
