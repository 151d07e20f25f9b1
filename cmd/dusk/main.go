package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v3"

	"github.com/wudi/dusk/builtins"
	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/compiler"
	"github.com/wudi/dusk/dis"
	"github.com/wudi/dusk/object"
	"github.com/wudi/dusk/vm"
)

func main() {
	app := &cli.Command{
		Name:  "dusk",
		Usage: "A small Python-flavored scripting language",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "a",
				Local: true,
				Usage: "Run as interactive shell",
			},
			&cli.StringFlag{
				Name:    "code",
				Local:   true,
				Aliases: []string{"r"},
				Usage:   "Run dusk <code> directly",
				Action: func(ctx context.Context, cmd *cli.Command, s string) error {
					return executeCode(s, "<code>")
				},
			},
			&cli.StringFlag{
				Name:    "file",
				Local:   true,
				Aliases: []string{"f"},
				Usage:   "Parse and execute <file>",
				Action: func(ctx context.Context, cmd *cli.Command, s string) error {
					return executeFile(s)
				},
			},
			&cli.StringFlag{
				Name:  "dis",
				Local: true,
				Usage: "Disassemble <file> instead of running it",
				Action: func(ctx context.Context, cmd *cli.Command, s string) error {
					return disassembleFile(s)
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("a") {
				return runInteractiveShell()
			}
			if args := cmd.Args(); args.Len() > 0 {
				return executeFile(args.First())
			}
			code, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			return executeCode(string(code), "<stdin>")
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVM() (*vm.VM, error) {
	v := vm.New(vm.Config{Compile: compiler.Compile})
	if err := builtins.Register(v); err != nil {
		return nil, err
	}
	return v, nil
}

func executeFile(filename string) error {
	code, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return executeCode(string(code), filename)
}

func executeCode(source, filename string) error {
	v, err := newVM()
	if err != nil {
		return err
	}
	module := v.NewModule("__main__")
	_, err = v.ExecSource(source, filename, bytecode.ModeExec, module)
	return err
}

func disassembleFile(filename string) error {
	source, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	co, err := compiler.Compile(string(source), filename, bytecode.ModeExec)
	if err != nil {
		return err
	}
	fmt.Print(dis.Disassemble(co))
	return nil
}

func runInteractiveShell() error {
	v, err := newVM()
	if err != nil {
		return err
	}
	module := v.NewModule("__main__")

	rl, err := readline.New("dusk> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("dusk interactive shell (ctrl-d to exit)")
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on ctrl-d, readline.ErrInterrupt on ctrl-c
			if err == readline.ErrInterrupt {
				continue
			}
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			// Block statement: keep reading until a blank line.
			var body []string
			body = append(body, line)
			rl.SetPrompt("....> ")
			for {
				more, err := rl.Readline()
				if err != nil || strings.TrimSpace(more) == "" {
					break
				}
				body = append(body, more)
			}
			rl.SetPrompt("dusk> ")
			line = strings.Join(body, "\n")
		}

		// Expressions evaluate and echo; statements execute.
		if result, err := v.ExecSource(line, "<stdin>", bytecode.ModeEval, module); err == nil {
			if !result.IsType(object.TagNoneType) {
				if s, rerr := v.AsRepr(nil, result); rerr == nil {
					fmt.Println(s)
				}
			}
			continue
		}
		if _, err := v.ExecSource(line, "<stdin>", bytecode.ModeExec, module); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
