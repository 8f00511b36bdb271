package main

import (
	"bufio"
	"dsbuild/raft"
	"dsbuild/raft/simtest"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	errQuit       = errors.New("quit")
	errBadCommand = errors.New("bad command")
)

var (
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const help = `leader                        current leader and its term
term                          term of the majority
shutdown <i>                  shut replica i down
rerun <i>                     start replica i again
get <server:seq>              response to a request
create <i> <key>              send a command to replica i
update <i> <key> <value>
delete <i> <key>
cas <i> <key> <cmp> <value>
read <i> <key>                send a read to replica i
steps <n>                     make n simulation steps
disconnect <i>                cut replica i off the network
repair                        repair the network
help
quit`

type repl struct {
	cluster *simtest.Cluster
	out     io.Writer
}

// run executes commands read from in until it ends or quit.
func (r *repl) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, promptStyle.Render("raft> "))
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		err := r.exec(scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
		}
	}
}

func (r *repl) exec(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd, args := args[0], args[1:]

	want := map[string]int{
		"leader": 0, "term": 0, "repair": 0, "help": 0, "quit": 0, "exit": 0,
		"shutdown": 1, "rerun": 1, "get": 1, "steps": 1, "disconnect": 1,
		"create": 2, "delete": 2, "read": 2,
		"update": 3,
		"cas":    4,
	}
	n, ok := want[cmd]
	if !ok {
		return fmt.Errorf("%w: %q, try help", errBadCommand, cmd)
	}
	if len(args) != n {
		return fmt.Errorf("%w: %s takes %d arguments", errBadCommand, cmd, n)
	}

	switch cmd {
	case "leader":
		leader, ok := r.cluster.CurrentLeader()
		if !ok {
			r.printf("no leader")
			return nil
		}
		term, _ := r.cluster.CurrentTerm()
		r.printf("leader %d, term %d", leader, term)
	case "term":
		term, ok := r.cluster.CurrentTerm()
		if !ok {
			r.printf("no majority term")
			return nil
		}
		r.printf("term %d", term)
	case "repair":
		r.cluster.RepairNetwork()
		r.printf("network repaired")
	case "help":
		r.printf("%s", help)
	case "quit", "exit":
		return errQuit
	case "steps":
		steps, err := strconv.Atoi(args[0])
		if err != nil || steps < 0 {
			return fmt.Errorf("%w: bad step count %q", errBadCommand, args[0])
		}
		r.cluster.MakeSteps(steps)
		r.printf("time %.3fs", r.cluster.Sim().Time())
	case "get":
		id, err := raft.ParseCommandID(args[0])
		if err != nil {
			return err
		}
		if id.Server < 0 || id.Server >= r.cluster.Size() {
			return fmt.Errorf("%w: no replica %d", errBadCommand, id.Server)
		}
		resp, ok := r.cluster.Replica(id.Server).Response(id)
		if !ok {
			r.printf("no response to %s yet", id)
			return nil
		}
		r.printf("%s", resp)
	default:
		return r.execOn(cmd, args)
	}
	return nil
}

// execOn runs the commands addressed to a replica.
func (r *repl) execOn(cmd string, args []string) error {
	i, err := strconv.Atoi(args[0])
	if err != nil || i < 0 || i >= r.cluster.Size() {
		return fmt.Errorf("%w: bad replica %q", errBadCommand, args[0])
	}
	args = args[1:]

	var id raft.CommandID
	switch cmd {
	case "shutdown":
		if err := r.cluster.Shutdown(i); err != nil {
			return err
		}
		r.printf("replica %d is down", i)
		return nil
	case "rerun":
		if err := r.cluster.Rerun(i); err != nil {
			return err
		}
		r.printf("replica %d is up", i)
		return nil
	case "disconnect":
		r.cluster.SplitNetwork(i)
		r.printf("replica %d is cut off", i)
		return nil
	case "create":
		id, err = r.cluster.SendCommand(i, raft.Create(args[0]))
	case "update":
		id, err = r.cluster.SendCommand(i, raft.Update(args[0], args[1]))
	case "delete":
		id, err = r.cluster.SendCommand(i, raft.Delete(args[0]))
	case "cas":
		id, err = r.cluster.SendCommand(i, raft.Cas(args[0], args[1], args[2]))
	case "read":
		id, err = r.cluster.SendRead(i, args[0])
	}
	if err != nil {
		return err
	}
	r.printf("sent %s", id)
	return nil
}

func (r *repl) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}
