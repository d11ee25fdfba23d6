package engine

import (
	"context"
	"fmt"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
)

// ScreenAction is something a player does on a remote screen.
type ScreenAction string

const (
	ActionPasswordSubmit     ScreenAction = "password_submit"
	ActionHighSecuritySubmit ScreenAction = "highsecurity_submit"
	ActionMenuSelect         ScreenAction = "menu_select"
	ActionGoBack             ScreenAction = "go_back"
)

// ParseScreenAction validates an action name.
func ParseScreenAction(s string) (ScreenAction, error) {
	switch a := ScreenAction(s); a {
	case ActionPasswordSubmit, ActionHighSecuritySubmit, ActionMenuSelect, ActionGoBack:
		return a, nil
	}
	return "", domain.NewValidationError(fmt.Sprintf("unknown screen action %q", s))
}

// ScreenInput carries the parameters of a screen action.
type ScreenInput struct {
	Password    string `json:"password,omitempty"`
	ScreenIndex int    `json:"screen_index,omitempty"`
}

// MenuOption is one entry of a menu screen.
type MenuOption struct {
	ScreenIndex int               `json:"screen_index"`
	Title       string            `json:"title"`
	ScreenType  domain.ScreenType `json:"screen_type"`
}

// Link is an address listed on a links screen.
type Link struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// ScreenData is a rendered remote screen.
type ScreenData struct {
	HostID     int64             `json:"host_id"`
	HostName   string            `json:"host_name"`
	Address    string            `json:"address"`
	ScreenType domain.ScreenType `json:"screen_type"`
	SubPage    int               `json:"sub_page"`
	Title      string            `json:"title"`
	Text       string            `json:"text,omitempty"`
	Prompt     string            `json:"prompt,omitempty"`
	Error      string            `json:"error,omitempty"`

	Options  []MenuOption       `json:"options,omitempty"`
	Missions []domain.Mission   `json:"missions,omitempty"`
	Files    []domain.DataFile  `json:"files,omitempty"`
	Logs     []domain.AccessLog `json:"logs,omitempty"`
	Links    []Link             `json:"links,omitempty"`
	Software []SoftwareItem     `json:"software,omitempty"`
	Hardware []HardwareItem     `json:"hardware,omitempty"`
}

// BuildScreenData renders a screen from the current store contents. It never writes.
func BuildScreenData(ctx context.Context, tx storage.Tx, host *domain.TargetHost, screen *domain.ScreenDefinition,
	screens []domain.ScreenDefinition, player *domain.Player) (*ScreenData, error) {

	data := &ScreenData{
		HostID:     host.ID,
		HostName:   host.Name,
		Address:    host.Address,
		ScreenType: screen.ScreenType,
		SubPage:    screen.SubPage,
		Title:      screen.Title,
	}

	switch screen.ScreenType {
	case domain.ScreenMessage:
		data.Text = screen.Data1

	case domain.ScreenPassword:
		data.Prompt = "Enter password"
		data.Text = screen.Data2

	case domain.ScreenHighSecurity:
		data.Prompt = "High security access code required"
		data.Text = screen.Data2

	case domain.ScreenMenu:
		for _, s := range screens {
			if s.ScreenType.Listed() {
				data.Options = append(data.Options, MenuOption{ScreenIndex: s.SubPage, Title: s.Title, ScreenType: s.ScreenType})
			}
		}

	case domain.ScreenBBS:
		missions, err := tx.ListMissions(ctx, host.SessionID)
		if err != nil {
			return nil, err
		}
		for _, m := range missions {
			if !m.Accepted && m.MinRating <= player.UpRating {
				data.Missions = append(data.Missions, m)
			}
		}

	case domain.ScreenFileServer:
		files, err := tx.ListFiles(ctx, host.ID)
		if err != nil {
			return nil, err
		}
		data.Files = files

	case domain.ScreenLinks:
		hosts, err := tx.ListHosts(ctx, host.SessionID)
		if err != nil {
			return nil, err
		}
		for _, h := range hosts {
			if h.Kind != domain.HostKindGateway && h.ID != host.ID {
				data.Links = append(data.Links, Link{Name: h.Name, Address: h.Address})
			}
		}

	case domain.ScreenLog:
		logs, err := tx.ListLogs(ctx, host.ID)
		if err != nil {
			return nil, err
		}
		for _, l := range logs {
			if l.Visible && !l.Deleted {
				data.Logs = append(data.Logs, l)
			}
		}

	case domain.ScreenSWSales:
		data.Software = softwareCatalog

	case domain.ScreenHWSales:
		data.Hardware = hardwareCatalog
	}
	return data, nil
}
