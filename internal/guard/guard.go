// Package guard はセッション状態に応じて画面遷移を制御するルートガードを提供する。
//
// ガードはマウント時と、セッションが変更されるたびに状態を評価する。
// ガード自身はネットワークにアクセスせず、セッションの読み取りと遷移の指示だけを行う。
package guard

import (
	"sync"

	"github.com/hitoshi/taskman/internal/session"
)

// 遷移先のルート
const (
	RouteHome   = "/"
	RouteSignIn = "/signIn"
)

// Navigator は画面遷移を行う。
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc は関数をNavigatorとして扱うためのアダプタ。
type NavigatorFunc func(route string)

// Navigate はf(route)を呼ぶ。
func (f NavigatorFunc) Navigate(route string) {
	f(route)
}

// Source はガードが監視するセッション。
// *session.Store がこれを満たす。
type Source interface {
	Snapshot() session.Snapshot
	Subscribe(fn session.Listener) (unsubscribe func())
}

// Policy はガードの種類。
type Policy int

const (
	// PolicyRedirectIfAuthenticated はログイン済みの場合にホームへ遷移させる。
	// サインイン・サインアップ画面で使用する。
	PolicyRedirectIfAuthenticated Policy = iota
	// PolicyProtected は未ログインの場合にサインイン画面へ遷移させる。
	PolicyProtected
)

// String はfmt.Stringerを実装する。
func (p Policy) String() string {
	switch p {
	case PolicyRedirectIfAuthenticated:
		return "redirect_if_authenticated"
	case PolicyProtected:
		return "protected"
	default:
		return "unknown"
	}
}

// Evaluate はセッション状態に対するポリシーの判定結果を返す。
// 表示を許可しない場合はredirectに遷移先が入る。
func Evaluate(p Policy, snap session.Snapshot) (allowed bool, redirect string) {
	switch p {
	case PolicyRedirectIfAuthenticated:
		if snap.Authenticated() {
			return false, RouteHome
		}
		return true, ""
	case PolicyProtected:
		if !snap.Authenticated() {
			return false, RouteSignIn
		}
		return true, ""
	default:
		return false, RouteHome
	}
}

// Guard はマウント中の画面に対するルートガード。
type Guard struct {
	policy Policy
	nav    Navigator

	mu          sync.Mutex
	allowed     bool
	last        session.Snapshot
	unmounted   bool
	unsubscribe func()
}

// RedirectIfAuthenticated はPolicyRedirectIfAuthenticatedのガードをマウントする。
func RedirectIfAuthenticated(src Source, nav Navigator) *Guard {
	return Mount(PolicyRedirectIfAuthenticated, src, nav)
}

// Protected はPolicyProtectedのガードをマウントする。
func Protected(src Source, nav Navigator) *Guard {
	return Mount(PolicyProtected, src, nav)
}

// Mount はガードを生成し、現在の状態を評価してからセッションの変更を購読する。
// 不許可と判定された場合はnavへ遷移を指示する。
func Mount(p Policy, src Source, nav Navigator) *Guard {
	g := &Guard{policy: p, nav: nav}

	// 購読を先に行い、評価との間の変更を取りこぼさない
	unsubscribe := src.Subscribe(g.onChange)

	snap := src.Snapshot()
	g.mu.Lock()
	g.unsubscribe = unsubscribe
	g.last = snap
	allowed, redirect := Evaluate(p, snap)
	g.allowed = allowed
	g.mu.Unlock()

	if !allowed {
		nav.Navigate(redirect)
	}
	return g
}

// Allowed は直近の評価で画面の表示が許可されたかを返す。
func (g *Guard) Allowed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.allowed && !g.unmounted
}

// Policy はガードの種類を返す。
func (g *Guard) Policy() Policy {
	return g.policy
}

// Unmount は購読を解除する。以降の変更では評価も遷移も行わない。
// 複数回呼んでもよい。
func (g *Guard) Unmount() {
	g.mu.Lock()
	if g.unmounted {
		g.mu.Unlock()
		return
	}
	g.unmounted = true
	unsubscribe := g.unsubscribe
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// onChange はセッション変更時に呼ばれ、状態が変わっていれば再評価する。
func (g *Guard) onChange(snap session.Snapshot) {
	g.mu.Lock()
	if g.unmounted || sameState(g.last, snap) {
		g.mu.Unlock()
		return
	}
	g.last = snap
	allowed, redirect := Evaluate(g.policy, snap)
	g.allowed = allowed
	g.mu.Unlock()

	if !allowed {
		g.nav.Navigate(redirect)
	}
}

// sameState はトークンとプロフィールが変化していないかを返す。
func sameState(a, b session.Snapshot) bool {
	if a.Token != b.Token {
		return false
	}
	if (a.User == nil) != (b.User == nil) {
		return false
	}
	return a.User == nil || *a.User == *b.User
}
