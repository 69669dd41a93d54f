package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/xnlogical/xvm/vm"
)

// runDebugger drives a single-step REPL over the given State. Each step
// executes exactly one instruction, including the pre-step error check. A
// pending error is unwound in a single step, down to a protected frame or
// to termination.
func runDebugger(state *vm.State) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("xvm debugger - 'help' lists commands")
	printLocation(state)

	for {
		input, err := line.Prompt("(xvm) ")
		if err != nil {
			// Ctrl-C / EOF ends the session.
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			input = "step"
		}
		line.AppendHistory(input)

		fields := strings.Fields(input)
		switch fields[0] {
		case "help", "h":
			fmt.Print(debugHelp)

		case "step", "s":
			if !state.Step() {
				fmt.Println("execution finished")
			}
			printLocation(state)

		case "run", "continue":
			for state.Step() {
			}
			fmt.Println("execution finished")

		case "reg", "r":
			if len(fields) < 2 {
				fmt.Println("usage: reg <index>")
				break
			}
			idx, err := strconv.ParseUint(fields[1], 10, 16)
			if err != nil {
				fmt.Println("usage: reg <index>")
				break
			}
			val := state.Register(uint16(idx))
			fmt.Printf("r%d = %s (%s)\n", idx, val.ToString(), val.TypeString())

		case "stack":
			for i := state.StackSize() - 1; i >= 0; i-- {
				val := state.StackAt(i)
				fmt.Printf("  [%3d] %s\n", i, val.ToString())
			}

		case "frames", "bt":
			for i := state.Depth() - 1; i >= 0; i-- {
				frame := state.Frame(i)
				marker := " "
				if frame.Protect {
					marker = "*"
				}
				fmt.Printf("  #%d%s %s\n", i, marker, frame.Closure.Callee.Signature())
			}

		case "dis":
			fmt.Println(state.Program().Disassemble())

		case "quit", "q", "exit":
			return nil

		default:
			fmt.Printf("unknown command %q - 'help' lists commands\n", fields[0])
		}
	}
}

// printLocation shows the instruction the pc rests on.
func printLocation(state *vm.State) {
	prog := state.Program()
	pc := state.PC()
	if pc < 0 || pc >= len(prog.Code) {
		return
	}
	fmt.Println(vm.DisassembleInstruction(pc, prog.Code[pc]))
}

const debugHelp = `Commands:
  step, s          execute one instruction (default)
  run, continue    execute until termination
  reg <n>          show register n
  stack            show the data stack
  frames, bt       show the call stack (protected frames marked *)
  dis              disassemble the program
  quit, q          leave the debugger
`
