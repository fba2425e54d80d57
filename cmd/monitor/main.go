package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"collabbot/internal/collab"
	"collabbot/internal/domain"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "collabbot base URL")
	interval := flag.Duration("interval", 2*time.Second, "refresh interval")
	sender := flag.String("sender", "monitor", "sender recorded for prompts")
	flag.Parse()

	c := newClient(*addr, 10*time.Second)
	ctx := context.Background()
	if err := c.waitHealth(ctx, 30*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "collabbot health check failed: %v\n", err)
		os.Exit(1)
	}

	app := tview.NewApplication()
	projectsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	projectsTable.SetTitle("Projects (Enter inspect, F5 refresh, F10 quit)").SetBorder(true)

	detailsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	detailsView.SetTitle("Project").SetBorder(true)

	contributionsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	contributionsView.SetTitle("Contributions").SetBorder(true)

	collabView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	collabView.SetTitle("Collaboration").SetBorder(true)

	promptInput := tview.NewInputField().
		SetLabel("Request -> agents: ")
	promptInput.SetBorder(true).SetTitle("Enter = start collaboration on selected project")

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf(
		"Connected to %s | shortcuts: F10 quit, F5 refresh, Ctrl+L focus prompt, Ctrl+P focus projects",
		c.baseURL,
	))

	rightBottom := tview.NewFlex().
		AddItem(contributionsView, 0, 2, false).
		AddItem(collabView, 0, 1, false)
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(detailsView, 0, 3, false).
		AddItem(rightBottom, 0, 2, false)

	mainLayout := tview.NewFlex().
		AddItem(projectsTable, 0, 1, false).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, false).
		AddItem(promptInput, 3, 0, true).
		AddItem(statusView, 3, 0, false)

	var (
		mu             sync.Mutex
		selectedID     string
		lastProjects   []domain.Project
		detailsVersion uint64
	)
	selected := func() string {
		mu.Lock()
		defer mu.Unlock()
		return selectedID
	}
	selectProject := func(id string) {
		mu.Lock()
		selectedID = id
		mu.Unlock()
	}

	setStatusUI := func(msg string) {
		statusView.SetText(msg)
	}
	setStatusAsync := func(msg string) {
		app.QueueUpdateDraw(func() {
			statusView.SetText(msg)
		})
	}

	refreshProjects := func() {
		projects, err := c.listProjects(ctx)
		if err != nil {
			app.QueueUpdateDraw(func() {
				projectsTable.Clear()
				projectsTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", err)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
			})
			return
		}
		sort.Slice(projects, func(i, j int) bool {
			return projects[i].LastUpdated.After(projects[j].LastUpdated)
		})
		mu.Lock()
		lastProjects = projects
		if selectedID == "" && len(projects) > 0 {
			selectedID = projects[0].ID
		}
		current := selectedID
		mu.Unlock()
		app.QueueUpdateDraw(func() {
			renderProjectsTable(projectsTable, projects, current)
		})
	}

	refreshDetailsAsync := func(projectID string) {
		if strings.TrimSpace(projectID) == "" {
			return
		}
		version := atomic.AddUint64(&detailsVersion, 1)

		go func(id string, v uint64) {
			var (
				wg      sync.WaitGroup
				p       domain.Project
				pErr    error
				stats   domain.ProjectStats
				sErr    error
				contrib []domain.AgentContribution
				cErr    error
				cstats  domain.CollaborationStats
				csErr   error
				views   []collab.RoundView
				rErr    error
			)
			wg.Add(5)
			go func() { defer wg.Done(); p, pErr = c.project(ctx, id) }()
			go func() { defer wg.Done(); stats, sErr = c.projectStats(ctx, id) }()
			go func() { defer wg.Done(); contrib, cErr = c.contributions(ctx, id) }()
			go func() { defer wg.Done(); cstats, csErr = c.collaborationStats(ctx, id) }()
			go func() { defer wg.Done(); views, rErr = c.rounds(ctx, id) }()
			wg.Wait()

			if atomic.LoadUint64(&detailsVersion) != v {
				return
			}
			app.QueueUpdateDraw(func() {
				if id != selected() {
					return
				}
				switch {
				case pErr != nil:
					detailsView.SetText(fmt.Sprintf("error: %v", pErr))
				case sErr != nil:
					detailsView.SetText(fmt.Sprintf("error: %v", sErr))
				default:
					detailsView.SetText(renderDetails(p, stats))
				}
				if cErr != nil {
					contributionsView.SetText(fmt.Sprintf("error: %v", cErr))
				} else {
					contributionsView.SetText(renderContributions(contrib))
					contributionsView.ScrollToEnd()
				}
				switch {
				case csErr != nil:
					collabView.SetText(fmt.Sprintf("error: %v", csErr))
				case rErr != nil:
					collabView.SetText(fmt.Sprintf("error: %v", rErr))
				default:
					collabView.SetText(renderCollaboration(cstats, views))
				}
			})
		}(projectID, version)
	}

	submitPrompt := func(prompt string) {
		prompt = strings.TrimSpace(prompt)
		if prompt == "" {
			return
		}
		id := selected()
		if id == "" {
			setStatusUI("Select a project first")
			return
		}
		setStatusUI("Collaboration round running on " + shortID(id) + "...")
		promptInput.SetText("")
		go func(projectID, input string) {
			// Rounds run longer than the polling client timeout.
			roundCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			defer cancel()
			slow := newClient(c.baseURL, 0)
			round, err := slow.collaborate(roundCtx, projectID, *sender, input)
			if err != nil {
				setStatusAsync("Collaboration failed: " + err.Error())
				return
			}
			refreshProjects()
			refreshDetailsAsync(projectID)
			msg := fmt.Sprintf("Round %s finished with %d contributions", shortID(round.ID), len(round.Contributions))
			if round.SynthesizedBy != "" {
				msg += ", synthesized by " + round.SynthesizedBy
			}
			setStatusAsync(msg)
		}(id, prompt)
	}

	promptInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		submitPrompt(promptInput.GetText())
	})

	projectsTable.SetSelectedFunc(func(row, _ int) {
		mu.Lock()
		if row <= 0 || row > len(lastProjects) {
			mu.Unlock()
			return
		}
		id := lastProjects[row-1].ID
		mu.Unlock()
		selectProject(id)
		refreshDetailsAsync(id)
		setStatusUI("Selected project " + shortID(id))
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if app.GetFocus() == promptInput {
			if event.Key() == tcell.KeyEscape || event.Key() == tcell.KeyTAB {
				app.SetFocus(projectsTable)
				setStatusUI("Focus -> projects")
				return nil
			}
			if event.Key() != tcell.KeyF10 && event.Key() != tcell.KeyF5 {
				return event
			}
		}

		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyF5:
			go func() {
				refreshProjects()
				refreshDetailsAsync(selected())
				setStatusAsync("Manual refresh complete")
			}()
			return nil
		case tcell.KeyCtrlL:
			app.SetFocus(promptInput)
			setStatusUI("Focus -> prompt")
			return nil
		case tcell.KeyCtrlP, tcell.KeyEscape:
			app.SetFocus(projectsTable)
			setStatusUI("Focus -> projects")
			return nil
		case tcell.KeyTAB:
			app.SetFocus(promptInput)
			return nil
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		refreshProjects()
		refreshDetailsAsync(selected())
		for range ticker.C {
			refreshProjects()
			refreshDetailsAsync(selected())
		}
	}()

	if err := app.SetRoot(root, true).EnableMouse(true).SetFocus(promptInput).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}
