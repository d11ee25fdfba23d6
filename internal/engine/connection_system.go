package engine

import (
	"context"
	"fmt"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
)

// ConnectionManager owns the bounce chain and screen navigation of each player.
type ConnectionManager struct {
	logger *logger.Logger
}

// NewConnectionManager creates a new connection manager.
func NewConnectionManager(log *logger.Logger) *ConnectionManager {
	return &ConnectionManager{logger: log}
}

// AddBounce appends an address to the player's bounce chain.
func (cm *ConnectionManager) AddBounce(ctx context.Context, tx storage.Tx, sessionID string, playerID int64, address string) (*domain.BounceNode, error) {
	conn, err := cm.idleConnection(ctx, tx, sessionID, playerID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.GetHostByAddress(ctx, sessionID, address); err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewValidationError(fmt.Sprintf("no host at %s", address))
		}
		return nil, err
	}

	nodes, err := tx.ListBounceNodes(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Address == address {
			return nil, domain.NewValidationError(fmt.Sprintf("%s is already in the bounce chain", address))
		}
	}

	node := &domain.BounceNode{ConnectionID: conn.ID, Position: len(nodes), Address: address}
	if err := tx.AddBounceNode(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// RemoveBounce removes the node at position and closes the gap behind it.
func (cm *ConnectionManager) RemoveBounce(ctx context.Context, tx storage.Tx, sessionID string, playerID int64, position int) error {
	conn, err := cm.idleConnection(ctx, tx, sessionID, playerID)
	if err != nil {
		return err
	}
	nodes, err := tx.ListBounceNodes(ctx, conn.ID)
	if err != nil {
		return err
	}
	if position < 0 || position >= len(nodes) {
		return domain.NewNotFoundError("bounce node", position)
	}

	if err := tx.DeleteBounceNode(ctx, nodes[position].ID); err != nil {
		return err
	}
	for i := position + 1; i < len(nodes); i++ {
		n := nodes[i]
		n.Position = i - 1
		if err := tx.UpdateBounceNode(ctx, &n); err != nil {
			return err
		}
	}
	return nil
}

// BounceChain lists the player's chain in routing order.
func (cm *ConnectionManager) BounceChain(ctx context.Context, tx storage.Tx, sessionID string, playerID int64) ([]domain.BounceNode, error) {
	conn, err := tx.EnsureConnection(ctx, sessionID, playerID)
	if err != nil {
		return nil, err
	}
	return tx.ListBounceNodes(ctx, conn.ID)
}

func (cm *ConnectionManager) idleConnection(ctx context.Context, tx storage.Tx, sessionID string, playerID int64) (*domain.Connection, error) {
	conn, err := tx.EnsureConnection(ctx, sessionID, playerID)
	if err != nil {
		return nil, err
	}
	if conn.Active {
		return nil, domain.NewValidationError("cannot modify the bounce chain while connected")
	}
	return conn, nil
}

// Connect routes through the chain to its last address and opens the root screen.
func (cm *ConnectionManager) Connect(ctx context.Context, tx storage.Tx, sessionID string, playerID int64) (*ScreenData, error) {
	conn, err := tx.EnsureConnection(ctx, sessionID, playerID)
	if err != nil {
		return nil, err
	}
	if conn.Active {
		return nil, domain.NewValidationError("already connected to " + conn.TargetAddress)
	}
	nodes, err := tx.ListBounceNodes(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, domain.NewValidationError("bounce chain is empty")
	}

	player, err := tx.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	session, err := tx.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	target, err := tx.GetHostByAddress(ctx, sessionID, nodes[len(nodes)-1].Address)
	if err != nil {
		return nil, err
	}
	screens, err := tx.ListScreens(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	if len(screens) == 0 {
		return nil, domain.NewValidationError(target.Name + " does not accept connections")
	}

	if err := cm.writeRouteLogs(ctx, tx, session, player, nodes); err != nil {
		return nil, err
	}
	if err := clearTraced(ctx, tx, nodes); err != nil {
		return nil, err
	}

	root := screens[0]
	conn.Active = true
	conn.TargetAddress = target.Address
	conn.HostID = target.ID
	conn.SubPage = root.SubPage
	conn.ResetTrace()
	if err := tx.UpdateConnection(ctx, conn); err != nil {
		return nil, err
	}

	cm.logger.Event("CONNECTED", sessionID, fmt.Sprintf("%s via %d hops", target.Address, len(nodes)))
	return BuildScreenData(ctx, tx, target, &root, screens, player)
}

// writeRouteLogs leaves a log on every hop: routed on relays, connection on the target.
func (cm *ConnectionManager) writeRouteLogs(ctx context.Context, tx storage.Tx, session *domain.Session, player *domain.Player, nodes []domain.BounceNode) error {
	from := player.LocalAddress
	for i, n := range nodes {
		host, err := tx.GetHostByAddress(ctx, session.ID, n.Address)
		if err != nil {
			return err
		}
		entry := &domain.AccessLog{
			HostID:        host.ID,
			SessionID:     session.ID,
			CreatedAtTick: session.GameTick,
			FromAddress:   from,
			FromName:      player.Handle,
			Kind:          domain.LogConnectionRouted,
			Subject:       "Connection routed through",
			Visible:       true,
		}
		if i == len(nodes)-1 {
			entry.Kind = domain.LogConnectionEstablished
			entry.Subject = "Connection established"
		}
		if err := tx.CreateLog(ctx, entry); err != nil {
			return err
		}
		from = n.Address
	}
	return nil
}

// Disconnect closes the connection and drops any trace in progress.
func (cm *ConnectionManager) Disconnect(ctx context.Context, tx storage.Tx, sessionID string, playerID int64) error {
	conn, err := tx.EnsureConnection(ctx, sessionID, playerID)
	if err != nil {
		return err
	}
	if !conn.Active && !conn.TraceActive && conn.TraceProgress == 0 {
		return nil
	}

	conn.Active = false
	conn.ResetTrace()
	if err := tx.UpdateConnection(ctx, conn); err != nil {
		return err
	}
	nodes, err := tx.ListBounceNodes(ctx, conn.ID)
	if err != nil {
		return err
	}
	if err := clearTraced(ctx, tx, nodes); err != nil {
		return err
	}
	cm.logger.Event("DISCONNECTED", sessionID, conn.TargetAddress)
	return nil
}

func clearTraced(ctx context.Context, tx storage.Tx, nodes []domain.BounceNode) error {
	for i := range nodes {
		if !nodes[i].Traced {
			continue
		}
		nodes[i].Traced = false
		if err := tx.UpdateBounceNode(ctx, &nodes[i]); err != nil {
			return err
		}
	}
	return nil
}

// CurrentScreen renders the screen the player is looking at.
func (cm *ConnectionManager) CurrentScreen(ctx context.Context, tx storage.Tx, sessionID string, playerID int64) (*ScreenData, error) {
	nav, err := cm.navigation(ctx, tx, sessionID, playerID)
	if err != nil {
		return nil, err
	}
	return BuildScreenData(ctx, tx, nav.host, nav.current, nav.screens, nav.player)
}

// HandleScreenAction applies a player action to the current screen.
func (cm *ConnectionManager) HandleScreenAction(ctx context.Context, tx storage.Tx, sessionID string, playerID int64,
	action ScreenAction, input ScreenInput) (*ScreenData, error) {

	nav, err := cm.navigation(ctx, tx, sessionID, playerID)
	if err != nil {
		return nil, err
	}
	current := nav.current

	var next *domain.ScreenDefinition
	switch action {
	case ActionPasswordSubmit, ActionHighSecuritySubmit:
		want := domain.ScreenPassword
		if action == ActionHighSecuritySubmit {
			want = domain.ScreenHighSecurity
		}
		if current.ScreenType != want {
			return nil, domain.NewValidationError(fmt.Sprintf("%s is not valid on this screen", action))
		}
		if input.Password != current.Data1 {
			data, err := BuildScreenData(ctx, tx, nav.host, current, nav.screens, nav.player)
			if err != nil {
				return nil, err
			}
			data.Error = "Access denied"
			return data, nil
		}
		page := current.SubPage + 1
		if current.NextPage != nil {
			page = *current.NextPage
		}
		if next = findScreen(nav.screens, page); next == nil {
			return nil, domain.NewNotFoundError("screen", page)
		}

	case ActionMenuSelect:
		switch current.ScreenType {
		case domain.ScreenMenu:
			next = findScreen(nav.screens, input.ScreenIndex)
			if next == nil || !next.ScreenType.Listed() {
				return nil, domain.NewValidationError(fmt.Sprintf("screen %d is not a menu option", input.ScreenIndex))
			}
		case domain.ScreenMessage:
			// A message screen continues only to its own next page.
			if current.NextPage == nil || *current.NextPage != input.ScreenIndex {
				return nil, domain.NewValidationError(fmt.Sprintf("screen %d does not follow this message", input.ScreenIndex))
			}
			if next = findScreen(nav.screens, input.ScreenIndex); next == nil {
				return nil, domain.NewNotFoundError("screen", input.ScreenIndex)
			}
		default:
			return nil, domain.NewValidationError("menu_select is not valid on this screen")
		}

	case ActionGoBack:
		next = parentScreen(nav.screens, current)

	default:
		return nil, domain.NewValidationError(fmt.Sprintf("unknown screen action %q", action))
	}

	nav.conn.SubPage = next.SubPage
	if err := tx.UpdateConnection(ctx, nav.conn); err != nil {
		return nil, err
	}
	return BuildScreenData(ctx, tx, nav.host, next, nav.screens, nav.player)
}

type navState struct {
	conn    *domain.Connection
	player  *domain.Player
	host    *domain.TargetHost
	screens []domain.ScreenDefinition
	current *domain.ScreenDefinition
}

func (cm *ConnectionManager) navigation(ctx context.Context, tx storage.Tx, sessionID string, playerID int64) (*navState, error) {
	conn, err := tx.EnsureConnection(ctx, sessionID, playerID)
	if err != nil {
		return nil, err
	}
	if !conn.Active {
		return nil, domain.NewValidationError("not connected")
	}
	player, err := tx.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	host, err := tx.GetHost(ctx, conn.HostID)
	if err != nil {
		return nil, err
	}
	screens, err := tx.ListScreens(ctx, host.ID)
	if err != nil {
		return nil, err
	}
	current := findScreen(screens, conn.SubPage)
	if current == nil {
		return nil, domain.NewNotFoundError("screen", conn.SubPage)
	}
	return &navState{conn: conn, player: player, host: host, screens: screens, current: current}, nil
}

func findScreen(screens []domain.ScreenDefinition, subPage int) *domain.ScreenDefinition {
	for i := range screens {
		if screens[i].SubPage == subPage {
			return &screens[i]
		}
	}
	return nil
}

// parentScreen is the nearest menu before current, or the root screen.
// Going back from a gate therefore never skips it.
func parentScreen(screens []domain.ScreenDefinition, current *domain.ScreenDefinition) *domain.ScreenDefinition {
	var parent *domain.ScreenDefinition
	for i := range screens {
		s := &screens[i]
		if s.ScreenType == domain.ScreenMenu && s.SubPage < current.SubPage {
			parent = s
		}
	}
	if parent == nil {
		parent = &screens[0]
	}
	return parent
}
