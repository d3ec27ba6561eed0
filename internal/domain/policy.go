package domain

// GuildPolicy carries the per-guild settings the lifecycle manager needs.
// ArchiveCategory nil means closed channels are deleted instead of archived.
type GuildPolicy struct {
	GuildID         int64
	StaffRoleIDs    []int64
	TicketCategory  *int64
	ArchiveCategory *int64
}

// IsStaff reports whether any of the given role IDs is a configured staff role.
func (p *GuildPolicy) IsStaff(roleIDs []int64) bool {
	for _, role := range roleIDs {
		for _, staffRole := range p.StaffRoleIDs {
			if role == staffRole {
				return true
			}
		}
	}
	return false
}
