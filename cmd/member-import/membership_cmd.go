package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/member-import/modules/members/domain/aggregates/member"
	"github.com/iota-uz/member-import/modules/members/domain/entities/group"
	"github.com/iota-uz/member-import/modules/members/domain/entities/membership"
	membersvc "github.com/iota-uz/member-import/modules/members/services"
	"github.com/iota-uz/member-import/modules/netenv/infrastructure/source"
)

type membershipOptions struct {
	member string
	group  string
	at     string
}

func newMembershipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "membership",
		Short: "Add members to groups or end their memberships",
	}
	cmd.AddCommand(newMembershipChangeCmd("add", "Make a member a direct member of a group"))
	cmd.AddCommand(newMembershipChangeCmd("remove", "End a member's direct or inherited membership in a group"))
	return cmd
}

func newMembershipChangeCmd(action, short string) *cobra.Command {
	var opts membershipOptions
	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now().UTC()
			if strings.TrimSpace(opts.at) != "" {
				t, err := source.ParseTime(opts.at)
				if err != nil {
					return withCode(exitUsage, fmt.Errorf("invalid --at: %w", err))
				}
				at = t
			}

			ctx, b, err := openBackend(cmd.Context(), backendPostgres)
			if err != nil {
				return err
			}
			defer b.close()

			var changed []membership.Membership
			err = b.tx.InTx(ctx, func(ctx context.Context) error {
				var err error
				changed, err = changeMembership(ctx, b, action, opts, at)
				return err
			})
			if err != nil {
				return brickExit(err)
			}

			out := make([]map[string]any, 0, len(changed))
			for _, m := range changed {
				row := map[string]any{"id": m.ID().String(), "group_id": m.GroupID().String()}
				if !m.ValidFrom().IsZero() {
					row["valid_from"] = m.ValidFrom().Format(time.DateOnly)
				}
				if !m.ValidTo().IsZero() {
					row["valid_to"] = m.ValidTo().Format(time.RFC3339)
				}
				out = append(out, row)
			}
			return writeJSONLine(cmd.OutOrStdout(), map[string]any{"status": "ok", "action": action, "memberships": out})
		},
	}
	cmd.Flags().StringVar(&opts.member, "member", "", "External id of the member")
	cmd.Flags().StringVar(&opts.group, "group", "", "Group as TOKEN or TOKEN/Status")
	if action == "remove" {
		cmd.Flags().StringVar(&opts.at, "at", "", "End of the membership (default: now)")
	}
	return cmd
}

func changeMembership(ctx context.Context, b *backend, action string, opts membershipOptions, at time.Time) ([]membership.Membership, error) {
	m, err := findMember(ctx, b, opts.member)
	if err != nil {
		return nil, err
	}
	g, err := findGroup(ctx, b, opts.group)
	if err != nil {
		return nil, err
	}

	svc := membersvc.NewGroupMembershipService(b.members, b.groups, b.memberships)
	if action == "add" {
		added, err := svc.AddToGroup(ctx, m.ID(), g.ID())
		if err != nil {
			return nil, err
		}
		return []membership.Membership{added}, nil
	}
	return svc.RemoveFromGroup(ctx, m.ID(), g.ID(), at)
}

func findMember(ctx context.Context, b *backend, externalID string) (member.Member, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return member.Member{}, &membersvc.BrickError{Kind: membersvc.MissingParameter, Param: "member"}
	}
	m, err := b.members.GetByExternalID(ctx, externalID)
	if errors.Is(err, member.ErrNotFound) {
		return member.Member{}, &membersvc.BrickError{Kind: membersvc.EntityNotFound, Entity: "member", ID: externalID}
	}
	return m, err
}

// findGroup resolves "TOKEN" or "TOKEN/Status".
func findGroup(ctx context.Context, b *backend, ref string) (group.Group, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return group.Group{}, &membersvc.BrickError{Kind: membersvc.MissingParameter, Param: "group"}
	}
	token, status, _ := strings.Cut(ref, "/")
	g, err := b.groups.GetByToken(ctx, strings.TrimSpace(token))
	if errors.Is(err, group.ErrNotFound) {
		return group.Group{}, &membersvc.BrickError{Kind: membersvc.EntityNotFound, Entity: "group", ID: ref}
	}
	if err != nil || status == "" {
		return g, err
	}
	children, err := b.groups.Children(ctx, g.ID())
	if err != nil {
		return group.Group{}, err
	}
	for _, c := range children {
		if strings.EqualFold(c.Name(), strings.TrimSpace(status)) {
			return c, nil
		}
	}
	return group.Group{}, &membersvc.BrickError{Kind: membersvc.EntityNotFound, Entity: "group", ID: ref}
}

func brickExit(err error) error {
	var be *membersvc.BrickError
	if errors.As(err, &be) {
		if be.Kind == membersvc.MissingParameter {
			return withCode(exitUsage, err)
		}
		return withCode(exitInput, err)
	}
	return withCode(exitDB, err)
}
