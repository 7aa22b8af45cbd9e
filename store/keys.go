package store

import "github.com/stratoform/controlplane/identifier"

// Primary-key/sort-key builders for the wire identifiers spec.md §6 names.
// Every writer derives keys through these functions so the composed
// secondary-index attributes (see deploymentWriteOps and eventItem in
// metadata.go) stay consistent with
// the primary key they're projected from.

func ModulePK(track identifier.Track, module string) string {
	return "MODULE#" + identifier.ModuleIdentifier(module, track)
}

func ModuleVersionSK(zeroPaddedVersion string) string {
	return "VERSION#" + zeroPaddedVersion
}

const LatestModulePK = "LATEST_MODULE"

func LatestModuleSK(track identifier.Track, module string) string {
	return "MODULE#" + identifier.ModuleIdentifier(module, track)
}

func DeploymentPK(project, region, deploymentID, environment string) string {
	return "DEPLOYMENT#" + identifier.DeploymentIdentifier(project, region, deploymentID, environment)
}

const DeploymentMetadataSK = "METADATA"

func DependentSK(childDeploymentID string) string {
	return "DEPENDENT#" + childDeploymentID
}

func EventPK(project, region, deploymentID, environment string) string {
	return "EVENT#" + identifier.DeploymentIdentifier(project, region, deploymentID, environment)
}

func ChangeRecordPK(prefix, project, region, deploymentID, environment string) string {
	return prefix + "#" + identifier.DeploymentIdentifier(project, region, deploymentID, environment)
}

const ProjectPKPrefix = "PROJECT#"

func ProjectSK(projectID string) string {
	return ProjectPKPrefix + projectID
}
