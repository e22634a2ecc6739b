package pets

import "context"

// OwnerOf expone el ownerUserID de una mascota.
// appointments e history lo consumen vía interfaz para no importar pets.
func (s *Service) OwnerOf(ctx context.Context, petID string) (string, error) {
	p, err := s.GetByID(ctx, petID)
	if err != nil {
		return "", err
	}
	return p.OwnerUserID, nil
}
