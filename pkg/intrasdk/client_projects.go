package intrasdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// FetchProjects returns every project attempt of the user identified by
// loginOrID. Pages of 100 are requested until a short page arrives or the
// client's page cap is hit.
func (c *Client) FetchProjects(ctx context.Context, loginOrID string) ([]Project, error) {
	loginOrID = strings.TrimSpace(loginOrID)
	if loginOrID == "" {
		return nil, newError(KindProjectsFetchFailed, 0, "no user given", nil)
	}
	path := usersPath + "/" + url.PathEscape(loginOrID) + "/projects_users"

	projects := make([]Project, 0)
	for page := 1; page <= c.maxPages; page++ {
		query := url.Values{}
		query.Set("page[size]", strconv.Itoa(projectsPageSize))
		query.Set("page[number]", strconv.Itoa(page))

		resp, err := c.executor.Get(ctx, path, query)
		if err != nil {
			return nil, projectsError(err)
		}

		var batch []projectResponse
		if err := resp.DecodeJSON(&batch); err != nil {
			return nil, err
		}
		for _, pr := range batch {
			projects = append(projects, pr.project())
		}

		if len(batch) < projectsPageSize {
			return projects, nil
		}
	}

	c.logger.Warn("project listing truncated", "user", loginOrID, "max_pages", c.maxPages)
	return projects, nil
}

func projectsError(err error) error {
	if KindOf(err) != KindRequestFailed {
		return err
	}
	status := StatusOf(err)
	if status == http.StatusNotFound {
		return newError(KindUserNotFound, status, "user not found", err)
	}
	return newError(KindProjectsFetchFailed, status, "failed to fetch projects", err)
}
