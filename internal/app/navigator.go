package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/hitoshi/taskman/internal/guard"
)

// routeTasksList はタスク操作の完了後に遷移する一覧画面。
const routeTasksList = "/tasks/list"

// routeCommands は遷移先の画面に対応するコマンド。
var routeCommands = map[string]string{
	guard.RouteHome:   "taskman home",
	guard.RouteSignIn: "taskman signin",
	"/signUp":         "taskman signup",
	routeTasksList:    "taskman tasks list",
}

// cliNavigator は遷移先を端末に表示するNavigator。
// 直前と同じ遷移先は繰り返し表示しない。
type cliNavigator struct {
	w io.Writer

	mu      sync.Mutex
	last    string
	history []string
}

func newCLINavigator(w io.Writer) *cliNavigator {
	return &cliNavigator{w: w}
}

// Navigate は遷移先と、その画面を開くコマンドを表示する。
func (n *cliNavigator) Navigate(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if route == n.last {
		return
	}
	n.last = route
	n.history = append(n.history, route)

	if cmd, ok := routeCommands[route]; ok {
		fmt.Fprintf(n.w, "→ %s (run `%s`)\n", route, cmd)
		return
	}
	fmt.Fprintf(n.w, "→ %s\n", route)
}

// History はこれまでの遷移先を順に返す。
func (n *cliNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.history...)
}

var _ guard.Navigator = (*cliNavigator)(nil)
