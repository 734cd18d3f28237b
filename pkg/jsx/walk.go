package jsx

// Action tells Walk how to proceed after a node has been entered.
type Action uint8

const (
	// Continue descends into the node's children.
	Continue Action = iota
	// SkipChildren leaves the node's subtree unvisited.
	SkipChildren
	// Stop aborts the whole walk.
	Stop
)

// Visitor receives pre-order Enter and post-order Leave callbacks.
// Leave is only called for nodes whose Enter returned Continue.
type Visitor interface {
	Enter(n Node) Action
	Leave(n Node)
}

// VisitorFuncs adapts a pair of functions to Visitor. Nil functions are
// treated as "continue" and "do nothing".
type VisitorFuncs struct {
	EnterFunc func(n Node) Action
	LeaveFunc func(n Node)
}

// Enter implements Visitor.
func (v VisitorFuncs) Enter(n Node) Action {
	if v.EnterFunc == nil {
		return Continue
	}

	return v.EnterFunc(n)
}

// Leave implements Visitor.
func (v VisitorFuncs) Leave(n Node) {
	if v.LeaveFunc != nil {
		v.LeaveFunc(n)
	}
}

// Walk traverses the tree rooted at root depth-first. It returns false if
// the visitor stopped the walk early.
func Walk(root Node, visitor Visitor) bool {
	if root == nil {
		return true
	}

	return walk(root, visitor)
}

func walk(n Node, visitor Visitor) bool {
	switch visitor.Enter(n) {
	case Stop:
		return false
	case SkipChildren:
		return true
	case Continue:
	}

	for _, child := range n.Children() {
		if child == nil {
			continue
		}

		if !walk(child, visitor) {
			return false
		}
	}

	visitor.Leave(n)

	return true
}
