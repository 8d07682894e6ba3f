// cedar compiles and runs Cedar source and hosts an interactive REPL.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/nickwanninger/cedar/engine"
	"github.com/nickwanninger/cedar/object"
	"github.com/nickwanninger/cedar/repl"
	"github.com/nickwanninger/cedar/stdlib"
)

const version = "0.1.0"

// printUsage displays custom usage information
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, `Cedar v%s

USAGE:
    %s [OPTIONS]

DESCRIPTION:
    Cedar reads, compiles, and runs Cedar source against a bytecode virtual machine and
    its work-stealing fiber scheduler.
    Without any flags, it starts an interactive REPL (Read-Eval-Print-Loop).

OPTIONS:
    -f, --file <path>       Execute a Cedar script file
    -e, --eval <code>       Evaluate a Cedar form and print the result
    -d, --debug             Enable debug mode with more verbose output
    -v, --version           Show version information
    -h, --help              Show this help message

EXAMPLES:
    # Start interactive REPL
    %s

    # Execute a script file
    %s -f script.cdr
    %s --file script.cdr

    # Evaluate a form
    %s -e "(do (def x 5) (* x 2))"
    %s --eval "(puts \"Hello, World!\")"

    # Execute with debug mode
    %s -f script.cdr -d

`, version, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	// Set custom usage function
	flag.Usage = printUsage

	// Define command-line flags
	fileFlag := flag.String("file", "", "Execute a Cedar script file")
	evalFlag := flag.String("eval", "", "Evaluate a Cedar form and print the result")
	debugFlag := flag.Bool("debug", false, "Enable debug mode with more verbose output")
	versionFlag := flag.Bool("version", false, "Show version information")
	noColorFlag := flag.Bool("no-color", false, "Disable syntax highlighting and colored output")

	// Define short flag aliases
	flag.StringVar(fileFlag, "f", "", "Execute a Cedar script file")
	flag.StringVar(evalFlag, "e", "", "Evaluate a Cedar form and print the result")
	flag.BoolVar(debugFlag, "d", false, "Enable debug mode with more verbose output")
	flag.BoolVar(versionFlag, "v", false, "Show version information")

	// Parse command-line flags
	flag.Parse()

	// Show version information if requested
	if *versionFlag {
		fmt.Printf("Cedar v%s\n", version)
		return
	}

	// Execute a file if specified
	if *fileFlag != "" {
		executeFile(*fileFlag, *debugFlag)
		return
	}

	// Evaluate a form if specified
	if *evalFlag != "" {
		evaluateExpression(*evalFlag)
		return
	}

	// Get current user
	username := "unknown"
	if usr, err := user.Current(); err == nil {
		username = usr.Username
	}

	repl.Start(username, repl.Options{NoColor: *noColorFlag, Debug: *debugFlag})
}

// newEngine boots an Engine with the standard library registered and its scheduler running.
func newEngine() (*engine.Engine, error) {
	e, err := engine.New(nil)
	if err != nil {
		return nil, err
	}
	stdlib.Register(e)
	e.Start()
	return e, nil
}

// executeFile reads and runs a Cedar script file
func executeFile(filename string, debug bool) {
	cleaned := filepath.Clean(filename)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		fmt.Printf("Error getting absolute path: %s\n", err)
		os.Exit(1)
	}

	//nolint:gosec // We're not reading user input here
	content, err := os.ReadFile(absolute)
	if err != nil {
		fmt.Printf("Error reading file: %s\n", err)
		os.Exit(1)
	}

	e, err := newEngine()
	if err != nil {
		fmt.Printf("Error starting engine: %s\n", err)
		os.Exit(1)
	}
	defer e.Stop()

	result, err := e.EvalString(string(content))
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}

	if debug {
		printResult(e, result)
	}
}

// evaluateExpression reads and runs a single Cedar form
func evaluateExpression(src string) {
	e, err := newEngine()
	if err != nil {
		fmt.Printf("Error starting engine: %s\n", err)
		os.Exit(1)
	}
	defer e.Stop()

	result, err := e.EvalString(src)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}

	printResult(e, result)
}

// printResult renders a result Ref the way Cedar's to_string operation displays it (§4.1).
func printResult(e *engine.Engine, result object.Ref) {
	s, err := e.Machine.ToString(result)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	str, _ := object.AsString(s)
	fmt.Println(str)
}
